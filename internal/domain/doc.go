// Package domain contains the core types of the virus scan workflow step.
//
// This package is the innermost layer. It has no dependencies on the scanning
// daemon's transport, HTTP, or logging, and holds only value types and the
// rules that apply to them.
//
// # Types
//
//   - [SessionConfig]: chunk, buffer and overlap sizes for streaming scans
//   - [ScanReport]: the daemon's responses for one streamed input
//   - [Verdict]: a caller-side interpretation of a single response line
//   - [Invocation]: a workflow step invocation received from the repository
//   - [DatasetFile]: a file belonging to the dataset version under review
//   - [WorkflowResult]: the outcome reported back to the repository
package domain
