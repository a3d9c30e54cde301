package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("PG_HOST", "db.internal")
	t.Setenv("PG_PORT", "6543")
	t.Setenv("EMPTY_VAR", "")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "host: ${PG_HOST}", "host: db.internal"},
		{"multiple", "addr: ${PG_HOST}:${PG_PORT}", "addr: db.internal:6543"},
		{"unset is empty", "value: ${UNSET_ANALYTICS_VAR}", "value: "},
		{"default when unset", "ttl: ${UNSET_ANALYTICS_VAR:-5m}", "ttl: 5m"},
		{"default when empty", "ttl: ${EMPTY_VAR:-5m}", "ttl: 5m"},
		{"value wins over default", "host: ${PG_HOST:-localhost}", "host: db.internal"},
		{"default with spaces", "name: ${UNSET_ANALYTICS_VAR:- retail }", "name: retail"},
		{"escaped", "literal: $${PG_HOST}", "literal: ${PG_HOST}"},
		{"unclosed", "broken: ${PG_HOST", "broken: ${PG_HOST"},
		{"required present", "host: ${PG_HOST:?host required}", "host: db.internal"},
		{"plain text", "no references here", "no references here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := SubstituteEnvVars(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSubstituteEnvVarsRequired(t *testing.T) {
	t.Setenv("EMPTY_VAR", "")

	result, err := SubstituteEnvVars("password: ${DB_PASSWORD_UNSET:?database password is required}\nhost: ${EMPTY_VAR:-localhost}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database password is required")
	assert.Equal(t, "password: \nhost: localhost", result)

	_, err = SubstituteEnvVars("password: ${DB_PASSWORD_UNSET:?}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required environment variable DB_PASSWORD_UNSET is not set")

	_, err = SubstituteEnvVars("a: ${FIRST_UNSET:?first}\nb: ${SECOND_UNSET:?second}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
}
