package service

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIDSource struct {
	mu   sync.Mutex
	last string
	err  error
}

func (s *fakeIDSource) LastTicketIDForDay(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.err
}

func (s *fakeIDSource) set(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = id
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAllocateFormat(t *testing.T) {
	alloc := NewTicketIDAllocator(&fakeIDSource{})
	alloc.now = fixedClock(time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC))

	id, err := alloc.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "20231201-0001", id)
	assert.Regexp(t, regexp.MustCompile(`^\d{8}-\d{4}$`), id)
}

func TestAllocateSequential(t *testing.T) {
	source := &fakeIDSource{}
	alloc := NewTicketIDAllocator(source)
	alloc.now = fixedClock(time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC))

	for i := 1; i <= 5; i++ {
		id, err := alloc.Allocate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("20231201-%04d", i), id)
		source.set(id)
	}
}

func TestAllocateResumesFromSource(t *testing.T) {
	alloc := NewTicketIDAllocator(&fakeIDSource{last: "20231201-0042"})
	alloc.now = fixedClock(time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC))

	id, err := alloc.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "20231201-0043", id)
}

func TestAllocateConcurrentUnique(t *testing.T) {
	// The source never advances; uniqueness rests entirely on the in-memory
	// high-water mark.
	alloc := NewTicketIDAllocator(&fakeIDSource{})
	alloc.now = fixedClock(time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC))

	const n = 50
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := alloc.Allocate(context.Background())
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	for i := 1; i <= n; i++ {
		assert.True(t, seen[fmt.Sprintf("20231201-%04d", i)])
	}
}

func TestAllocateDayRollover(t *testing.T) {
	source := &fakeIDSource{}
	alloc := NewTicketIDAllocator(source)
	alloc.now = fixedClock(time.Date(2023, 12, 1, 23, 59, 0, 0, time.UTC))

	id, err := alloc.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "20231201-0001", id)
	source.set(id)

	alloc.now = fixedClock(time.Date(2023, 12, 2, 0, 1, 0, 0, time.UTC))
	source.set("") // new day, no tickets yet

	id, err = alloc.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "20231202-0001", id)
}

func TestAllocateCorruptSuffix(t *testing.T) {
	alloc := NewTicketIDAllocator(&fakeIDSource{last: "20231201-00ab"})
	alloc.now = fixedClock(time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC))

	_, err := alloc.Allocate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt ticket id")
}

func TestAllocateExhausted(t *testing.T) {
	alloc := NewTicketIDAllocator(&fakeIDSource{last: "20231201-9999"})
	alloc.now = fixedClock(time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC))

	_, err := alloc.Allocate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily sequence exhausted")
}
