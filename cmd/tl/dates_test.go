package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateFlag(t *testing.T) {
	now := time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC) // a Wednesday

	got, err := parseDateFlag("due", "", now)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = parseDateFlag("due", "2024-04-01", now)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-01", got)

	got, err = parseDateFlag("due", "2024-04-01T09:30:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-01T09:30:00Z", got)

	got, err = parseDateFlag("due", "tomorrow", now)
	require.NoError(t, err)
	parsed, err := time.Parse(time.RFC3339, got)
	require.NoError(t, err)
	assert.Equal(t, 14, parsed.Day())

	_, err = parseDateFlag("due", "whenever you like", now)
	assert.Error(t, err)
}
