package gls

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct{ n int }

func TestIDDistinctPerGoroutine(t *testing.T) {
	main := ID()
	require.NotZero(t, main)
	assert.Equal(t, main, ID())

	other := make(chan uint64)
	go func() { other <- ID() }()
	assert.NotEqual(t, main, <-other)
}

func TestStoreIsolation(t *testing.T) {
	s := NewStore(func() *counter { return &counter{} }, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			defer s.Release()
			for j := 0; j < n; j++ {
				s.Get().n++
			}
			assert.Equal(t, n, s.Get().n)
		}(i + 1)
	}
	wg.Wait()
	assert.Equal(t, 0, s.Len())
}

func TestStoreReleaseRunsDestructor(t *testing.T) {
	var destroyed []*counter
	s := NewStore(func() *counter { return &counter{} }, func(c *counter) {
		destroyed = append(destroyed, c)
	})

	_, ok := s.Lookup()
	assert.False(t, ok)

	c := s.Get()
	c.n = 7
	got, ok := s.Lookup()
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, 1, s.Len())

	s.Release()
	require.Len(t, destroyed, 1)
	assert.Equal(t, 7, destroyed[0].n)

	// Releasing twice is harmless.
	s.Release()
	assert.Len(t, destroyed, 1)
	assert.Equal(t, 0, s.Len())
}

func TestStoreRange(t *testing.T) {
	s := NewStore(func() *counter { return &counter{} }, nil)
	s.Get().n = 3

	done := make(chan struct{})
	release := make(chan struct{})
	go func() {
		s.Get().n = 4
		close(done)
		<-release
		s.Release()
	}()
	<-done

	total := 0
	s.Range(func(_ uint64, c *counter) bool {
		total += c.n
		return true
	})
	assert.Equal(t, 7, total)
	close(release)
	s.Release()
}
