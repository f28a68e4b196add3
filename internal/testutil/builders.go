package testutil

import (
	"github.com/google/uuid"

	"github.com/target/healwright/internal/domain/model"
)

// EnqueueRequestBuilder builds test-run requests with sensible defaults.
type EnqueueRequestBuilder struct {
	req model.EnqueueRequest
}

// NewEnqueueRequest starts a request for run-1 of proj-1 at commit abc123 on main.
func NewEnqueueRequest() *EnqueueRequestBuilder {
	return &EnqueueRequestBuilder{req: model.EnqueueRequest{
		ProjectID: "proj-1",
		CommitRef: "abc123",
		TestRunID: "run-1",
		Metadata:  model.JobMetadata{Branch: "main"},
	}}
}

func (b *EnqueueRequestBuilder) WithProject(id string) *EnqueueRequestBuilder {
	b.req.ProjectID = id
	return b
}

func (b *EnqueueRequestBuilder) WithCommit(ref string) *EnqueueRequestBuilder {
	b.req.CommitRef = ref
	return b
}

func (b *EnqueueRequestBuilder) WithTestRun(id string) *EnqueueRequestBuilder {
	b.req.TestRunID = id
	return b
}

// WithMetadata replaces the whole metadata block.
func (b *EnqueueRequestBuilder) WithMetadata(md model.JobMetadata) *EnqueueRequestBuilder {
	b.req.Metadata = md
	return b
}

// Build returns the request.
func (b *EnqueueRequestBuilder) Build() model.EnqueueRequest {
	return b.req
}

// BuildParams wraps the request in repository params with a fresh UUIDv7 job id.
func (b *EnqueueRequestBuilder) BuildParams() model.CreateJobParams {
	return model.CreateJobParams{
		ID:      uuid.Must(uuid.NewV7()).String(),
		Request: b.req,
	}
}
