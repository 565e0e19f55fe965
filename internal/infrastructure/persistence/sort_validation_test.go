package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSortOrder(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string returns DESC", "", "DESC"},
		{"ASC uppercase returns ASC", "ASC", "ASC"},
		{"asc lowercase returns ASC", "asc", "ASC"},
		{"invalid value returns DESC", "INVALID", "DESC"},
		{"injection attempt returns DESC", "ASC; DROP TABLE licenses;--", "DESC"},
		{"whitespace around ASC returns ASC", "  asc  ", "ASC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortOrder(tt.input))
		})
	}
}

func TestValidateSortField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string returns default", "", "created_at"},
		{"whitelisted field", "email", "email"},
		{"unknown field returns default", "legacy_credential", "created_at"},
		{"injection attempt returns default", "key; DROP TABLE licenses;--", "created_at"},
		{"case sensitive", "EMAIL", "created_at"},
		{"trimmed", "  status  ", "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortField(tt.input, LicenseSortFields, "created_at"))
		})
	}
}

func TestSortFieldWhitelists(t *testing.T) {
	assert.True(t, AuditSortFields["created_at"])
	assert.False(t, LicenseSortFields["legacy_credential"])
	for table, fields := range ActivitySortFields {
		assert.NotEmpty(t, fields, table)
	}
}
