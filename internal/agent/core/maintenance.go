package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/landlord/internal/prompts"
	"go.uber.org/zap"
)

// MaintenanceAnalysis is stored under MetaMaintenanceAnalysis.
type MaintenanceAnalysis struct {
	IssueAnalysis      string          `json:"issue_analysis"`
	SuggestedActions   []string        `json:"suggested_actions"`
	Urgency            interface{}     `json:"urgency,omitempty"`
	EstimatedCost      string          `json:"estimated_cost,omitempty"`
	RecommendedVendors []string        `json:"recommended_vendors,omitempty"`
	WorkerQuery        string          `json:"worker_query,omitempty"`
	Workers            []WorkerListing `json:"workers,omitempty"`
	Notification       string          `json:"notification,omitempty"`
	Degraded           bool            `json:"degraded"`
}

func maintenanceFallback(urgency string) MaintenanceAnalysis {
	if urgency == "" {
		urgency = string(UrgencyIntermediate)
	}
	return MaintenanceAnalysis{
		IssueAnalysis:      "Automated analysis is unavailable. The maintenance request has been logged and needs a manual inspection.",
		SuggestedActions:   []string{"Schedule an inspection", "Contact a qualified maintenance worker"},
		Urgency:            urgency,
		EstimatedCost:      "Unknown",
		RecommendedVendors: []string{"Emergency Maintenance Services"},
		Degraded:           true,
	}
}

// NeedsWorkerSearch is a heuristic on the model's reply: a mention of
// "search" asks for outside workers to be looked up.
func NeedsWorkerSearch(reply string) bool {
	return strings.Contains(strings.ToLower(reply), "search")
}

// NeedsContact is a heuristic on the model's reply: a mention of "contact"
// asks for a notification to be sent.
func NeedsContact(reply string) bool {
	return strings.Contains(strings.ToLower(reply), "contact")
}

var trades = []struct {
	keywords []string
	trade    string
}{
	{[]string{"leak", "plumb", "pipe", "water", "clog", "drain", "toilet"}, "plumber"},
	{[]string{"electric", "outage", "socket", "wiring", "power"}, "electrician"},
	{[]string{"roof", "gutter"}, "roofer"},
	{[]string{"heating", "heater", "boiler", "radiator"}, "heating technician"},
	{[]string{"mold", "mould"}, "mold remediation service"},
	{[]string{"lock", "door", "key"}, "locksmith"},
}

// WorkerQuery builds a worker search query from the tenant message and a location.
func WorkerQuery(text, location string) string {
	trade := "maintenance workers"
	for _, t := range trades {
		if containsKeyword(text, t.keywords) {
			trade = t.trade
			break
		}
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return trade + " contact information"
	}
	return fmt.Sprintf("%s near %s contact information", trade, location)
}

// MaintenanceHandler analyses repair requests. Depending on the model's reply
// it looks up workers and notifies a contact; both steps are optional.
type MaintenanceHandler struct {
	specialist
	directory       WorkerDirectory
	listings        ListingStore
	notifier        Notifier
	defaultLocation string
}

// MaintenanceOptions configures the optional side effects.
type MaintenanceOptions struct {
	Directory       WorkerDirectory
	Listings        ListingStore
	Notifier        Notifier
	DefaultLocation string
}

// NewMaintenanceHandler builds the maintenance specialist.
func NewMaintenanceHandler(d Deps, opts MaintenanceOptions, tools ...Tool) *MaintenanceHandler {
	return &MaintenanceHandler{
		specialist:      newSpecialist(HandlerMaintenance, prompts.Maintenance, d, tools),
		directory:       opts.Directory,
		listings:        opts.Listings,
		notifier:        opts.Notifier,
		defaultLocation: opts.DefaultLocation,
	}
}

func (h *MaintenanceHandler) Handle(ctx context.Context, state *State) error {
	text := state.LatestHuman().Content
	ans, err := h.ask(ctx, map[string]string{"Message": text})
	if err != nil {
		return err
	}
	reply := ans.reply
	if ans.err != nil {
		analysis := maintenanceFallback(state.String(MetaUrgency))
		state.Append(RoleAssistant, analysis.IssueAnalysis)
		state.Set(MetaMaintenanceAnalysis, analysis)
		return nil
	}

	var analysis MaintenanceAnalysis
	if !decodeReply(reply, &analysis) {
		analysis = MaintenanceAnalysis{IssueAnalysis: reply}
	}

	accumulated := reply
	if h.directory != nil && NeedsWorkerSearch(reply) {
		location := state.String(MetaLocation)
		if location == "" {
			location = h.defaultLocation
		}
		query := WorkerQuery(text, location)
		analysis.WorkerQuery = query
		workers, err := h.searchWorkers(ctx, query)
		if err != nil {
			h.logger.Warn("worker search failed", zap.String("query", query), zap.Error(err))
			accumulated += fmt.Sprintf("\n\nError searching for maintenance workers: %v", err)
		} else {
			analysis.Workers = workers
			accumulated += "\n\n" + formatWorkers(location, workers)
		}
	}
	if h.notifier != nil && NeedsContact(reply) {
		subject := fmt.Sprintf("Maintenance request (%s urgency)", urgencyLabel(state))
		status, err := h.notifier.Send(context.WithoutCancel(ctx), subject, accumulated)
		if err != nil {
			h.logger.Warn("notification failed", zap.Error(err))
			status = fmt.Sprintf("Error sending email: %v", err)
		}
		analysis.Notification = status
		accumulated += "\n\n" + status
	}

	state.Append(RoleAssistant, accumulated)
	state.Set(MetaMaintenanceAnalysis, analysis)
	return nil
}

func (h *MaintenanceHandler) searchWorkers(ctx context.Context, query string) ([]WorkerListing, error) {
	callCtx, cancel := stageContext(ctx, h.timeout)
	defer cancel()
	workers, err := h.directory.FindWorkers(callCtx, query)
	if err != nil {
		return nil, err
	}
	if h.listings != nil && len(workers) > 0 {
		if err := h.listings.SaveWorkerListings(context.WithoutCancel(ctx), query, workers); err != nil {
			h.logger.Warn("persist worker listings failed", zap.Error(err))
		}
	}
	return workers, nil
}

func urgencyLabel(state *State) string {
	if u := state.String(MetaUrgency); u != "" {
		return u
	}
	return string(UrgencyIntermediate)
}

func formatWorkers(location string, workers []WorkerListing) string {
	var b strings.Builder
	if location != "" {
		fmt.Fprintf(&b, "Found maintenance workers in %s:", location)
	} else {
		b.WriteString("Found maintenance workers:")
	}
	if len(workers) == 0 {
		b.WriteString("\nNo workers found.")
		return b.String()
	}
	for _, w := range workers {
		fmt.Fprintf(&b, "\n- %s", w.Name)
		var details []string
		if w.Type != "" {
			details = append(details, w.Type)
		}
		if w.Rating > 0 {
			details = append(details, fmt.Sprintf("rating %.1f", w.Rating))
		}
		if w.Phone != "" {
			details = append(details, w.Phone)
		}
		if w.Website != "" {
			details = append(details, w.Website)
		}
		if len(details) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(details, ", "))
		}
	}
	return b.String()
}
