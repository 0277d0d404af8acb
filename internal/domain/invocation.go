package domain

import "fmt"

// Invocation is a workflow step invocation posted by the repository.
type Invocation struct {
	InvocationID string `json:"invocationId"`
	GlobalID     string `json:"globalId"`
	DatasetID    string `json:"datasetId"`
	MajorVersion string `json:"majorVersion"`
	MinorVersion string `json:"minorVersion"`
}

// Validate checks the fields required to process the invocation.
func (i Invocation) Validate() error {
	if i.InvocationID == "" {
		return fmt.Errorf("%w: invocationId is required", ErrInvalidInvocation)
	}
	if i.DatasetID == "" {
		return fmt.Errorf("%w: datasetId is required", ErrInvalidInvocation)
	}
	return nil
}

// DatasetFile is one file of the dataset version under review.
type DatasetFile struct {
	ID    int64
	Label string
	Size  int64
}

// WorkflowStatus is the outcome reported when resuming a workflow.
type WorkflowStatus string

const (
	WorkflowSuccess WorkflowStatus = "Success"
	WorkflowFailure WorkflowStatus = "Failure"
)

// WorkflowResult is sent back to the repository to resume the paused workflow.
type WorkflowResult struct {
	Status  WorkflowStatus `json:"status"`
	Reason  string         `json:"reason,omitempty"`
	Message string         `json:"message,omitempty"`
}

// FileOutcome records the scan result of one dataset file.
type FileOutcome struct {
	File    DatasetFile
	Verdict Verdict
	Err     error
}
