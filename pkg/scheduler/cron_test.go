package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCron(t *testing.T) {
	assert.NoError(t, ValidateCron("0 9 * * *", "UTC"))
	assert.NoError(t, ValidateCron("*/15 * * * *", ""))
	assert.NoError(t, ValidateCron("0 9 * * 1-5", "America/New_York"))

	assert.ErrorIs(t, ValidateCron("not a cron", "UTC"), ErrInvalidCron)
	assert.ErrorIs(t, ValidateCron("0 9 * * * *", "UTC"), ErrInvalidCron)
	assert.ErrorIs(t, ValidateCron("0 9 * * *", "Mars/Olympus"), ErrInvalidCron)
}

func TestNextRun(t *testing.T) {
	t.Run("already past today's slot", func(t *testing.T) {
		after := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
		next, err := NextRun("0 9 * * *", "UTC", after)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), next.UTC())
	})

	t.Run("before today's slot", func(t *testing.T) {
		after := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
		next, err := NextRun("0 9 * * *", "UTC", after)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), next.UTC())
	})

	t.Run("evaluated in the schedule's timezone", func(t *testing.T) {
		// 09:00 in New York is 14:00 UTC during EST
		after := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		next, err := NextRun("0 9 * * *", "America/New_York", after)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC), next.UTC())
	})

	t.Run("empty timezone means UTC", func(t *testing.T) {
		after := time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)
		next, err := NextRun("0 9 * * *", "", after)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), next.UTC())
	})
}
