package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TicketIDSource exposes the persisted high-water mark for a day's ticket
// ids.
type TicketIDSource interface {
	LastTicketIDForDay(ctx context.Context, dayPrefix string) (string, error)
}

const ticketIDDayFormat = "20060102"

// TicketIDAllocator produces date-scoped ticket identifiers of the form
// YYYYMMDD-NNNN (UTC day, 4-digit sequence starting at 0001). Allocation is
// a single critical section: the in-memory high-water mark guarantees that
// two concurrent allocations never hand out the same number, even before
// the first ticket insert lands.
type TicketIDAllocator struct {
	source TicketIDSource
	now    func() time.Time

	mu   sync.Mutex
	day  string
	last int
}

// NewTicketIDAllocator builds an allocator backed by the given source.
func NewTicketIDAllocator(source TicketIDSource) *TicketIDAllocator {
	return &TicketIDAllocator{source: source, now: time.Now}
}

// Allocate returns the next free ticket id for today.
func (a *TicketIDAllocator) Allocate(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prefix := a.now().UTC().Format(ticketIDDayFormat)
	if a.day != prefix {
		a.day = prefix
		a.last = 0
	}

	lastID, err := a.source.LastTicketIDForDay(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("allocate ticket id: %w", err)
	}

	seq := 0
	if lastID != "" {
		seq, err = parseTicketSequence(lastID, prefix)
		if err != nil {
			// Corrupt ids must fail the allocation, silently reusing a
			// number would break ticket identity.
			return "", err
		}
	}
	if seq < a.last {
		seq = a.last
	}
	seq++
	if seq > 9999 {
		return "", fmt.Errorf("allocate ticket id: daily sequence exhausted for %s", prefix)
	}
	a.last = seq

	return fmt.Sprintf("%s-%04d", prefix, seq), nil
}

func parseTicketSequence(ticketID, dayPrefix string) (int, error) {
	suffix, ok := strings.CutPrefix(ticketID, dayPrefix+"-")
	if !ok || len(suffix) != 4 {
		return 0, fmt.Errorf("corrupt ticket id %q for day %s", ticketID, dayPrefix)
	}
	seq, err := strconv.Atoi(suffix)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("corrupt ticket id %q: unparseable sequence", ticketID)
	}
	return seq, nil
}
