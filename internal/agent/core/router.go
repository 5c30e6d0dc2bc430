package core

// HandlerID names the stage a routed message is dispatched to.
type HandlerID string

const (
	HandlerTerminate    HandlerID = "terminate"
	HandlerTaxation     HandlerID = "taxation"
	HandlerMaintenance  HandlerID = "maintenance"
	HandlerAsset        HandlerID = "asset"
	HandlerEmailDrafter HandlerID = "email_drafter"
	HandlerGeneral      HandlerID = "general"
)

// Route picks the handler for a classified message. It is pure.
//
// Explicit keywords in the current message win over the category label, so a
// stale or wrong classification still reaches the right specialist. First
// match wins: malicious, taxation, maintenance, asset, email, general.
func Route(result ClassificationResult, text string) HandlerID {
	switch {
	case result.Malicious:
		return HandlerTerminate
	case result.Category == CategoryTaxation || containsKeyword(text, taxationKeywords):
		return HandlerTaxation
	case result.Category == CategoryMaintenance || containsKeyword(text, maintenanceKeywords):
		return HandlerMaintenance
	case result.Category == CategoryAsset || containsKeyword(text, assetKeywords):
		return HandlerAsset
	case result.Category == CategoryEmailDrafter || containsKeyword(text, emailKeywords):
		return HandlerEmailDrafter
	default:
		return HandlerGeneral
	}
}
