package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 10, 29, 14, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	t.Run("duration is relative to now", func(t *testing.T) {
		got, err := Parse("1h30m", now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 10, 29, 12, 30, 0, 0, time.UTC), got)
	})

	t.Run("rfc3339 is absolute", func(t *testing.T) {
		got, err := Parse("2025-10-29T13:00:00+01:00", now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 10, 29, 12, 0, 0, 0, time.UTC), got)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		for _, spec := range []string{"", "yesterday", "-5m"} {
			_, err := Parse(spec, now)
			assert.Error(t, err, spec)
		}
	})
}

func TestParseRange(t *testing.T) {
	since, until, err := ParseRange("2h", "1h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-2*time.Hour), since)
	assert.Equal(t, now.Add(-time.Hour), until)

	since, until, err = ParseRange("", "", now)
	require.NoError(t, err)
	assert.True(t, since.IsZero())
	assert.True(t, until.IsZero())

	_, _, err = ParseRange("1h", "2h", now)
	assert.ErrorContains(t, err, "--since must be before --until")

	_, _, err = ParseRange("nope", "", now)
	assert.ErrorContains(t, err, "invalid --since")

	_, _, err = ParseRange("", "nope", now)
	assert.ErrorContains(t, err, "invalid --until")
}
