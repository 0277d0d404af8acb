// Package clamd implements a client for the scanning daemon's socket protocol.
//
// Scan streams an input of unknown length with the INSTREAM command. The
// input is cut into length-prefixed frames of at most BufferSize bytes and
// into sessions of ChunkSize new bytes each, so the daemon's per-stream limit
// is never exceeded. The last OverlapSize bytes of every closed session are
// re-sent at the head of the next one, so a signature that straddles a
// session boundary is still seen whole by one session.
//
// Wire format of one session:
//
//	"zINSTREAM\0" { uint32be(len) payload } uint32be(0)
//
// The daemon answers each session with one line, "stream: OK" or
// "stream: <signature> FOUND" on success. Anything else fails the scan.
package clamd
