package authstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tgforward-web/internal/event"
)

func TestStoreStartsUnauthenticated(t *testing.T) {
	t.Parallel()

	require.False(t, New("sid", nil).IsAuthenticated())
}

func TestStoreNotifiesOnlyOnChange(t *testing.T) {
	t.Parallel()

	store := New("sid", nil)
	changes, unsubscribe := store.Subscribe()
	defer unsubscribe()

	require.False(t, store.SetAuthenticated(false))
	require.True(t, store.SetAuthenticated(true))
	require.False(t, store.SetAuthenticated(true))

	select {
	case v := <-changes:
		require.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("change not delivered")
	}

	select {
	case v := <-changes:
		t.Fatalf("unexpected change %v", v)
	default:
	}
}

func TestStoreSubscriberSeesLatestValue(t *testing.T) {
	t.Parallel()

	store := New("sid", nil)
	changes, unsubscribe := store.Subscribe()
	defer unsubscribe()

	store.SetAuthenticated(true)
	store.Reset()

	require.False(t, <-changes)
	require.False(t, store.IsAuthenticated())
}

func TestStorePublishesAuthChanged(t *testing.T) {
	t.Parallel()

	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	New("sid-3", bus).SetAuthenticated(true)

	e := <-events
	require.Equal(t, event.TypeAuthChanged, e.Type)
	require.Equal(t, "sid-3", e.SessionID)
	require.Equal(t, true, e.Payload)
}

func TestStoreUnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()

	store := New("sid", nil)
	changes, unsubscribe := store.Subscribe()
	unsubscribe()
	unsubscribe()

	_, open := <-changes
	require.False(t, open)
	require.True(t, store.SetAuthenticated(true))
}
