package nav

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNavigateIsIdempotentWhilePending(t *testing.T) {
	t.Parallel()

	n := New("sid", nil)

	const callers = 32
	var wg sync.WaitGroup
	wg.Add(callers)
	started := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			started <- n.Navigate("/login")
		}()
	}
	wg.Wait()
	close(started)

	effective := 0
	for ok := range started {
		if ok {
			effective++
		}
	}
	require.Equal(t, 1, effective)
	require.Equal(t, 1, n.Count())

	target, ok := n.Pending()
	require.True(t, ok)
	require.Equal(t, "/login", target)
}

func TestArriveEndsNavigation(t *testing.T) {
	t.Parallel()

	n := New("sid", nil)
	require.True(t, n.Navigate("/login"))

	n.Arrive("/login")
	_, ok := n.Pending()
	require.False(t, ok)

	require.True(t, n.Navigate("/login"))
	n.Arrive("/user")
	_, ok = n.Pending()
	require.False(t, ok)

	require.True(t, n.Navigate("/login"))
	require.Equal(t, 3, n.Count())
}

func TestOnNavigateRunsForEffectiveNavigationsOnly(t *testing.T) {
	t.Parallel()

	n := New("sid", nil)
	var targets []string
	n.OnNavigate(func(target string) { targets = append(targets, target) })

	n.Navigate("/login")
	n.Navigate("/login")
	n.Arrive("/login")
	n.Navigate("/user")

	require.Equal(t, []string{"/login", "/user"}, targets)
}
