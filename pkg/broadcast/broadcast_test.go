package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect[T any](t *testing.T, s *Subscription[T], n int) []T {
	t.Helper()
	out := make([]T, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case v, ok := <-s.C():
			if !ok {
				return out
			}
			out = append(out, v)
		case <-timeout:
			t.Fatalf("timed out after %d of %d values", len(out), n)
		}
	}
	return out
}

func TestEverySubscriberSeesEveryEventInOrder(t *testing.T) {
	b := New[int]()
	a := b.Subscribe()
	c := b.Subscribe()
	defer a.Close()
	defer c.Close()

	for i := 0; i < 100; i++ {
		b.Publish(i)
	}

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, collect(t, a, 100))
	assert.Equal(t, want, collect(t, c, 100))
}

func TestLateSubscriberSeesOnlyNewEvents(t *testing.T) {
	b := New[string]()
	early := b.Subscribe()
	defer early.Close()

	b.Publish("one")
	b.Publish("two")
	require.Equal(t, []string{"one", "two"}, collect(t, early, 2))

	late := b.Subscribe()
	defer late.Close()
	b.Publish("three")

	assert.Equal(t, []string{"three"}, collect(t, late, 1))
	assert.Equal(t, []string{"three"}, collect(t, early, 1))
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	b := New[int]()
	slow := b.Subscribe() // never read until the end
	fast := b.Subscribe()
	defer slow.Close()
	defer fast.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			b.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	got := collect(t, fast, 10000)
	assert.Len(t, got, 10000)
	assert.Equal(t, 9999, got[len(got)-1])

	got = collect(t, slow, 10000)
	assert.Len(t, got, 10000)
}

func TestCloseDrainsBacklog(t *testing.T) {
	b := New[int]()
	s := b.Subscribe()

	for i := 0; i < 5; i++ {
		b.Publish(i)
	}
	b.Close()
	b.Publish(99)

	var got []int
	for v := range s.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)

	after := b.Subscribe()
	_, ok := <-after.C()
	assert.False(t, ok, "subscribing to a closed broadcaster yields a finished stream")
}

func TestUnsubscribe(t *testing.T) {
	b := New[int]()
	s := b.Subscribe()
	require.Equal(t, 1, b.Subscribers())

	s.Close()
	s.Close()
	assert.Equal(t, 0, b.Subscribers())

	b.Publish(1)
	_, ok := <-s.C()
	assert.False(t, ok)
}

func TestConcurrentPublishers(t *testing.T) {
	b := New[int]()
	s := b.Subscribe()
	defer s.Close()

	const writers, per = 4, 500
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				b.Publish(base + i)
			}
		}(w * per)
	}
	wg.Wait()

	got := collect(t, s, writers*per)
	seen := make(map[int]bool, len(got))
	for _, v := range got {
		seen[v] = true
	}
	assert.Len(t, seen, writers*per)
}
