package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tgforward-web/internal/event"
)

func TestToastsDrainInOrder(t *testing.T) {
	t.Parallel()

	toasts := NewToasts("sid", nil)
	toasts.Notify(LevelWarning, "first")
	toasts.Notify(LevelError, "second")

	drained := toasts.Drain()
	require.Len(t, drained, 2)
	require.Equal(t, "first", drained[0].Message)
	require.Equal(t, LevelError, drained[1].Level)
	require.Empty(t, toasts.Drain())
}

func TestToastsKeepOnlyMostRecent(t *testing.T) {
	t.Parallel()

	toasts := NewToasts("sid", nil)
	for i := 0; i < defaultLimit+5; i++ {
		toasts.Notify(LevelInfo, fmt.Sprintf("toast %d", i))
	}

	drained := toasts.Drain()
	require.Len(t, drained, defaultLimit)
	require.Equal(t, "toast 5", drained[0].Message)
}

func TestToastsPublishOnBus(t *testing.T) {
	t.Parallel()

	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	NewToasts("sid-9", bus).Notify(LevelWarning, "Please log in to continue.")

	select {
	case e := <-events:
		require.Equal(t, event.TypeToast, e.Type)
		require.Equal(t, "sid-9", e.SessionID)
		toast, ok := e.Payload.(Toast)
		require.True(t, ok)
		require.Equal(t, "Please log in to continue.", toast.Message)
	case <-time.After(time.Second):
		t.Fatal("toast not published")
	}
}
