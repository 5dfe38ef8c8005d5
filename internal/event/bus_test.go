package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBusDeliversToEverySubscriber(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	first, unsubscribeFirst := bus.Subscribe()
	defer unsubscribeFirst()
	second, unsubscribeSecond := bus.Subscribe()
	defer unsubscribeSecond()

	bus.Publish(New("sid-1", TypeToast, "hello"))

	for _, ch := range []<-chan Event{first, second} {
		select {
		case e := <-ch:
			require.Equal(t, TypeToast, e.Type)
			require.Equal(t, "sid-1", e.SessionID)
			require.NotEmpty(t, e.ID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	ch, unsubscribe := bus.Subscribe()
	unsubscribe()
	unsubscribe()

	_, open := <-ch
	require.False(t, open)

	bus.Publish(New("sid-1", TypeNavigate, "/login"))
}

func TestCloseEndsSubscriptions(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	events, unsubscribe := bus.Subscribe()

	bus.Close()
	_, ok := <-events
	require.False(t, ok)

	// Neither a late publish nor a late unsubscribe panics.
	bus.Publish(New("sid-1", TypeNavigate, "/login"))
	unsubscribe()

	late, _ := bus.Subscribe()
	_, ok = <-late
	require.False(t, ok)
}
