package server

import (
	"github.com/mohammad-safakhou/landlord/internal/agent/core"
	"github.com/mohammad-safakhou/landlord/internal/worker"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// HealthResponse is returned by the liveness probe.
type HealthResponse struct {
	Status string `json:"status"`
}

// EnqueueRequest stores an inbound tenant message.
type EnqueueRequest struct {
	Content  string `json:"content"`
	Source   string `json:"source"`
	Location string `json:"location"`
}

// RefreshResponse lists what a refresh did with each unprocessed message.
type RefreshResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Results []worker.Result `json:"results"`
}

// DraftEmailRequest carries the worker and issue an email is drafted for.
type DraftEmailRequest struct {
	WorkerInfo   core.WorkerInfo   `json:"worker_info"`
	IssueDetails core.IssueDetails `json:"issue_details"`
}

// DraftEmailResponse returns the drafted email.
type DraftEmailResponse struct {
	EmailDraft string `json:"email_draft"`
	Degraded   bool   `json:"degraded,omitempty"`
}
