package core

import (
	"context"
	"strings"
)

// Role tags a turn in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Turn is a single role-tagged piece of text.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Category is the closed set of labels a message can be classified into.
type Category string

const (
	CategoryMaintenance  Category = "maintenance"
	CategoryAsset        Category = "asset"
	CategoryTaxation     Category = "taxation"
	CategoryGeneral      Category = "general"
	CategoryEmailDrafter Category = "email_drafter"
	CategoryComplaints   Category = "complaints"
	CategoryEmergency    Category = "emergency"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryMaintenance,
	CategoryAsset,
	CategoryTaxation,
	CategoryGeneral,
	CategoryEmailDrafter,
	CategoryComplaints,
	CategoryEmergency,
}

// ParseCategory normalises free text into a Category. Anything outside the
// enumeration becomes CategoryGeneral.
func ParseCategory(s string) Category {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if s == "email" || s == "email_draft" {
		return CategoryEmailDrafter
	}
	for _, c := range Categories {
		if string(c) == s {
			return c
		}
	}
	return CategoryGeneral
}

// Valid reports whether c is part of the enumeration.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Urgency of an inbound message.
type Urgency string

const (
	UrgencyLow          Urgency = "low"
	UrgencyIntermediate Urgency = "intermediate"
	UrgencyHigh         Urgency = "high"
)

// InferUrgency scans a raw model reply for an urgency word. "high" wins over
// "intermediate"; anything else is low.
func InferUrgency(reply string) Urgency {
	lower := strings.ToLower(reply)
	switch {
	case strings.Contains(lower, string(UrgencyHigh)):
		return UrgencyHigh
	case strings.Contains(lower, string(UrgencyIntermediate)):
		return UrgencyIntermediate
	default:
		return UrgencyLow
	}
}

// Metadata keys written by the pipeline stages.
const (
	MetaMessageID       = "message_id"
	MetaReceivedAt      = "received_at"
	MetaCategory        = "category"
	MetaUrgency         = "urgency"
	MetaMalicious       = "is_malicious"
	MetaMaliciousReason = "malicious_reason"
	MetaClassifierMode  = "classifier_mode"
	MetaHandler         = "handler"
	MetaLocation        = "location"
	MetaSelectedWorker  = "selected_worker"
	MetaIssueDetails    = "issue_details"
	MetaReportID        = "report_id"

	MetaAssetAnalysis       = "asset_analysis"
	MetaMaintenanceAnalysis = "maintenance_analysis"
	MetaTaxationAnalysis    = "taxation_analysis"
	MetaEmailDraft          = "email_draft"
)

// HandlerMetaKeys are the keys owned by specialist handlers.
var HandlerMetaKeys = []string{
	MetaAssetAnalysis,
	MetaMaintenanceAnalysis,
	MetaTaxationAnalysis,
	MetaEmailDraft,
}

// Completer is the LLM completion service. Implementations return a non-empty
// reply or an error that wraps ErrServiceUnavailable or ErrMalformedResponse.
// They never retry.
type Completer interface {
	Complete(ctx context.Context, turns []Turn) (string, error)
}

// Tool is an external capability invoked with free text.
type Tool interface {
	Name() string
	Run(ctx context.Context, input string) (string, error)
}

// WorkerListing is one result of a maintenance worker search.
type WorkerListing struct {
	Name    string  `json:"name"`
	Type    string  `json:"type,omitempty"`
	Rating  float64 `json:"rating,omitempty"`
	Reviews int     `json:"reviews,omitempty"`
	Address string  `json:"address,omitempty"`
	Phone   string  `json:"phone,omitempty"`
	Website string  `json:"website,omitempty"`
}

// WorkerDirectory finds maintenance workers for a query such as
// "plumber near Munich contact information".
type WorkerDirectory interface {
	FindWorkers(ctx context.Context, query string) ([]WorkerListing, error)
}

// ClassificationRecord is the persisted shape of a classification log entry.
type ClassificationRecord struct {
	MessageContent string   `json:"message_content"`
	Flag           Category `json:"flag"`
	Urgency        Urgency  `json:"urgency"`
}

// ClassificationLog stores classification records. Insert-only.
type ClassificationLog interface {
	InsertClassification(ctx context.Context, rec ClassificationRecord) error
}

// ListingStore persists worker listings returned by a search.
type ListingStore interface {
	SaveWorkerListings(ctx context.Context, query string, listings []WorkerListing) error
}

// ReportStore persists taxation reports and returns the report id.
type ReportStore interface {
	SaveTaxReport(ctx context.Context, messageID string, report TaxationAnalysis) (string, error)
}

// Notifier sends a notification and returns a human readable status line.
type Notifier interface {
	Send(ctx context.Context, subject, body string) (string, error)
}
