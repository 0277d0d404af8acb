package ports

import (
	"context"
	"io"

	"github.com/bft-labs/virusscan/internal/domain"
)

// ConnectionChecker performs a single round-trip to verify a dependency is reachable.
type ConnectionChecker interface {
	CheckConnection(ctx context.Context) error
}

// Repository is the data repository whose workflows invoke this step.
type Repository interface {
	ConnectionChecker

	// ListFiles returns the files of the given dataset version.
	ListFiles(ctx context.Context, datasetID, version string) ([]domain.DatasetFile, error)

	// OpenFile streams the content of a file. The caller closes the reader.
	OpenFile(ctx context.Context, fileID int64) (io.ReadCloser, error)

	// ResumeWorkflow reports the step outcome for a paused workflow invocation.
	ResumeWorkflow(ctx context.Context, invocationID string, result domain.WorkflowResult) error
}
