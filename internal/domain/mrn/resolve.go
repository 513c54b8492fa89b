package mrn

import (
	"strings"

	"github.com/rs/zerolog"
)

// categoryPaths lists, in resolution order, where an intake document may
// carry an explicit category. Newer submissions write summary.intakeCategory;
// older ones used the metadata block or a flat payload key.
var categoryPaths = [][]string{
	{"summary", "intakeCategory"},
	{"metadata", "intakeCategory"},
	{"payload", "metadata", "intakeCategory"},
	{"payload", "intake_category"},
}

// pregnantStatusPaths lists where the pregnancy flag may live, used as the
// inference fallback when no explicit category is present.
var pregnantStatusPaths = [][]string{
	{"payload", "pregnant_status"},
	{"summary", "routing", "pregnantStatus"},
}

// ResolveCategory determines the MR category for an intake document.
// Resolution order: explicit category field, then pregnancy-status
// inference, then the obstetri default. The boolean is false only on the
// default path, which is also logged as a warning so data-quality review
// can find records that were never explicitly categorized.
func ResolveCategory(doc map[string]interface{}, logger zerolog.Logger) (Category, bool) {
	if doc == nil {
		logger.Warn().Msg("no intake data to determine MR category, defaulting to obstetri")
		return CategoryObstetri, false
	}

	for _, path := range categoryPaths {
		if raw, ok := lookupString(doc, path); ok {
			if c, err := ParseCategory(raw); err == nil {
				return c, true
			}
		}
	}

	for _, path := range pregnantStatusPaths {
		if status, ok := lookupString(doc, path); ok && strings.EqualFold(status, "yes") {
			return CategoryObstetri, true
		}
	}

	logger.Warn().Msg("could not determine MR category from intake data, defaulting to obstetri")
	return CategoryObstetri, false
}

// lookupString walks a nested map along path and returns the string leaf.
func lookupString(doc map[string]interface{}, path []string) (string, bool) {
	var cur interface{} = doc
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		cur, ok = m[key]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
