package booking

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordingNavigator struct {
	mu   sync.Mutex
	urls []string
}

func (n *recordingNavigator) Navigate(targetURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, targetURL)
	return nil
}

func (n *recordingNavigator) visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.urls...)
}

func TestScheduler_FiresOnceAfterDelay(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	nav := &recordingNavigator{}
	fired := make(chan string, 1)
	s := NewScheduler(nav, WithFiredHook(func(u string, err error) {
		if err == nil {
			fired <- u
		}
	}))

	start := time.Now()
	s.Schedule("https://example.org/prenotazione/?appartamento=A3", 30*time.Millisecond)

	target, ok := s.Pending()
	require.True(t, ok)
	require.Equal(t, "https://example.org/prenotazione/?appartamento=A3", target)

	select {
	case u := <-fired:
		require.Equal(t, target, u)
	case <-time.After(2 * time.Second):
		t.Fatal("navigation did not fire")
	}
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, []string{target}, nav.visited())

	_, ok = s.Pending()
	require.False(t, ok)
	require.False(t, s.Cancel())
}

func TestScheduler_CancelPreventsNavigation(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	nav := &recordingNavigator{}
	s := NewScheduler(nav)
	s.Schedule("https://example.org/a", 20*time.Millisecond)
	require.True(t, s.Cancel())

	time.Sleep(60 * time.Millisecond)
	require.Empty(t, nav.visited())
}

func TestScheduler_RescheduleReplacesPending(t *testing.T) {
	nav := &recordingNavigator{}
	s := NewScheduler(nav)
	s.Schedule("https://example.org/old", 20*time.Millisecond)
	s.Schedule("https://example.org/new", 20*time.Millisecond)

	require.Eventually(t, func() bool { return len(nav.visited()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, []string{"https://example.org/new"}, nav.visited())
}

func TestNavigatorFunc(t *testing.T) {
	var got string
	var n Navigator = NavigatorFunc(func(u string) error {
		got = u
		return nil
	})
	require.NoError(t, n.Navigate("x"))
	require.Equal(t, "x", got)
}
