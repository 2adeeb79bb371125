package notification_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/internal/notification"
)

// =============================================================================
// Manager Tests
// =============================================================================

func TestPushAndDismiss(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := notification.NewManager(notification.WithClock(func() time.Time { return fixed }))

	first := m.Warn("Remote data unavailable, showing cached tasks")
	second := m.Error("network error")

	assert.Equal(t, notification.LevelWarning, first.Level)
	assert.Equal(t, fixed, first.Timestamp)
	assert.NotEqual(t, first.ID, second.ID)
	require.Equal(t, 2, m.Count())

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, "network error", latest.Message)

	assert.True(t, m.Dismiss(first.ID))
	assert.False(t, m.Dismiss(first.ID), "second dismiss is a no-op")
	assert.Equal(t, []notification.Notification{second}, m.Active())

	assert.True(t, m.DismissLatest())
	assert.False(t, m.DismissLatest())
	_, ok = m.Latest()
	assert.False(t, ok)
}

func TestMaxActiveDropsOldest(t *testing.T) {
	m := notification.NewManager(notification.WithMaxActive(2))
	m.Info("one")
	m.Info("two")
	m.Info("three")

	active := m.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "two", active[0].Message)
	assert.Equal(t, "three", active[1].Message)

	m.DismissAll()
	assert.Equal(t, 0, m.Count())
}

func TestCallbackAndLogging(t *testing.T) {
	var buf bytes.Buffer
	var got []notification.Notification
	m := notification.NewManager(
		notification.WithLogger(zerolog.New(&buf)),
		notification.WithSendCallback(func(n notification.Notification) { got = append(got, n) }),
	)

	m.Error("boom")

	require.Len(t, got, 1)
	assert.Equal(t, "boom", got[0].Message)
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"message":"boom"`)
}
