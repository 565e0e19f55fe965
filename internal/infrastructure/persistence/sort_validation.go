package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// LicenseSortFields contains allowed sort fields for licenses
var LicenseSortFields = map[string]bool{
	"created_at":   true,
	"updated_at":   true,
	"key":          true,
	"email":        true,
	"name":         true,
	"plan":         true,
	"status":       true,
	"last_used_at": true,
}

// AuditSortFields contains allowed sort fields for audit entries
var AuditSortFields = map[string]bool{
	"created_at":  true,
	"action":      true,
	"actor_id":    true,
	"license_key": true,
}

// ActivitySortFields contains allowed sort fields per activity table
var ActivitySortFields = map[string]map[string]bool{
	"conversation_logs": {"created_at": true, "session_id": true},
	"leads":             {"created_at": true, "email": true, "source": true},
	"campaign_stats":    {"day": true, "campaign": true, "sent": true},
}
