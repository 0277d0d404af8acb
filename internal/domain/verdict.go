package domain

import "strings"

// ScanReport collects the daemon's responses for one streamed input.
type ScanReport struct {
	// Verdict is the response text of the last session.
	Verdict string

	// Responses holds every session's response line in order.
	Responses []string

	// Sessions is the number of sessions used.
	Sessions int

	// Bytes is the number of input bytes read.
	Bytes int64
}

// VerdictStatus classifies a daemon response line.
type VerdictStatus int

const (
	VerdictUnknown VerdictStatus = iota
	VerdictClean
	VerdictInfected
	VerdictError
)

// String returns a human-readable representation of the status.
func (s VerdictStatus) String() string {
	switch s {
	case VerdictClean:
		return "clean"
	case VerdictInfected:
		return "infected"
	case VerdictError:
		return "error"
	default:
		return "unknown"
	}
}

// Verdict is the interpretation of a single response line.
type Verdict struct {
	Status    VerdictStatus
	Signature string
	Raw       string
}

// ParseVerdict interprets a response line such as "stream: OK" or
// "stream: Eicar-Signature FOUND".
func ParseVerdict(line string) Verdict {
	raw := strings.TrimRight(line, "\x00\r\n")
	v := Verdict{Raw: raw}

	body := raw
	if i := strings.Index(raw, ": "); i >= 0 {
		body = raw[i+2:]
	}

	switch {
	case body == "OK":
		v.Status = VerdictClean
	case strings.HasSuffix(body, " FOUND"):
		v.Status = VerdictInfected
		v.Signature = strings.TrimSuffix(body, " FOUND")
	case strings.HasSuffix(body, " ERROR"):
		v.Status = VerdictError
	}
	return v
}

// Interpret folds the per-session responses into one verdict. The first
// infected session wins so a detection is never masked by a later clean session.
func (r ScanReport) Interpret() Verdict {
	responses := r.Responses
	if len(responses) == 0 && r.Verdict != "" {
		responses = []string{r.Verdict}
	}

	last := Verdict{}
	for _, line := range responses {
		v := ParseVerdict(line)
		if v.Status == VerdictInfected || v.Status == VerdictError {
			return v
		}
		last = v
	}
	return last
}
