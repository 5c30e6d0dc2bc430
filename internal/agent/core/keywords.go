package core

import (
	"strings"
	"unicode"
)

// Keyword tables shared by the router override and the classifier's offline
// heuristic. Single words match as a word prefix ("leak" matches "leaking");
// phrases match as a substring of the normalised text.
var (
	taxationKeywords = []string{"tax", "irs", "deduction", "depreciation", "vat"}

	maintenanceKeywords = []string{
		"leak", "repair", "broken", "maintenance", "roof", "plumb", "pipe",
		"heating", "heater", "boiler", "mold", "mould", "flood", "clog",
		"electric", "outage", "water damage", "not working",
	}

	assetKeywords = []string{
		"asset", "valuation", "appraisal", "portfolio", "mortgage",
		"property value", "market value", "rent increase",
	}

	emailKeywords = []string{"email", "e-mail", "draft"}
)

func normalise(text string) (string, []string) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	return strings.Join(words, " "), words
}

func containsKeyword(text string, keywords []string) bool {
	joined, words := normalise(text)
	for _, kw := range keywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(joined, kw) {
				return true
			}
			continue
		}
		for _, w := range words {
			if strings.HasPrefix(w, kw) {
				return true
			}
		}
	}
	return false
}

// HeuristicCategory guesses a category from keywords alone. It backs the
// classifier when the completion service is unreachable.
func HeuristicCategory(text string) Category {
	switch {
	case containsKeyword(text, taxationKeywords):
		return CategoryTaxation
	case containsKeyword(text, maintenanceKeywords):
		return CategoryMaintenance
	case containsKeyword(text, assetKeywords):
		return CategoryAsset
	case containsKeyword(text, emailKeywords):
		return CategoryEmailDrafter
	default:
		return CategoryGeneral
	}
}
