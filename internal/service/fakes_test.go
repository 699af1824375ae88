package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/supportdesk/helpdesk-bridge/internal/domain"
	"github.com/supportdesk/helpdesk-bridge/internal/events"
	"github.com/supportdesk/helpdesk-bridge/internal/repository"
	"github.com/supportdesk/helpdesk-bridge/internal/vk"
)

// memTicketRepo is an in-memory TicketRepository whose FindOrCreateActive is
// atomic under its mutex, mirroring the advisory-lock contract of the real
// implementation.
type memTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	order   []string
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: map[string]*domain.Ticket{}}
}

func (r *memTicketRepo) seed(t domain.Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertLocked(&t)
}

func (r *memTicketRepo) insertLocked(t *domain.Ticket) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	clone := *t
	r.tickets[t.TicketID] = &clone
	r.order = append(r.order, t.TicketID)
}

func (r *memTicketRepo) get(ticketID string) *domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tickets[ticketID]; ok {
		clone := *t
		return &clone
	}
	return nil
}

func (r *memTicketRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tickets)
}

func (r *memTicketRepo) FindOrCreateActive(ctx context.Context, userID, groupID int64, create repository.CreateTicketFunc) (*domain.Ticket, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		t := r.tickets[r.order[i]]
		if t.UserID == userID && t.GroupID == groupID && t.Status.IsActive() {
			clone := *t
			return &clone, false, nil
		}
	}
	fresh, err := create(ctx)
	if err != nil {
		return nil, false, err
	}
	r.insertLocked(fresh)
	clone := *fresh
	return &clone, true, nil
}

func (r *memTicketRepo) GetByTicketID(_ context.Context, ticketID string) (*domain.Ticket, error) {
	if t := r.get(ticketID); t != nil {
		return t, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *memTicketRepo) UpdateStatus(_ context.Context, ticketID string, status domain.TicketStatus, closedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	t.Status = status
	t.ClosedAt = closedAt
	t.UpdatedAt = time.Now()
	return nil
}

func (r *memTicketRepo) Assign(_ context.Context, ticketID, staffID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	id := staffID
	t.AssignedStaffID = &id
	t.UpdatedAt = time.Now()
	return nil
}

func (r *memTicketRepo) UpdatePriority(_ context.Context, ticketID string, priority domain.TicketPriority) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	t.Priority = priority
	t.UpdatedAt = time.Now()
	return nil
}

func (r *memTicketRepo) LastTicketIDForDay(_ context.Context, dayPrefix string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastForDayLocked(dayPrefix), nil
}

func (r *memTicketRepo) lastForDayLocked(dayPrefix string) string {
	var last string
	for id := range r.tickets {
		if strings.HasPrefix(id, dayPrefix+"-") && id > last {
			last = id
		}
	}
	return last
}

// idSource returns a TicketIDSource view that reads without taking the repo
// mutex. It is safe only because the allocator runs inside the
// FindOrCreateActive critical section, where the mutex is already held.
func (r *memTicketRepo) idSource() TicketIDSource {
	return unlockedIDSource{repo: r}
}

type unlockedIDSource struct {
	repo *memTicketRepo
}

func (s unlockedIDSource) LastTicketIDForDay(_ context.Context, dayPrefix string) (string, error) {
	return s.repo.lastForDayLocked(dayPrefix), nil
}

func (r *memTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Ticket
	for _, id := range r.order {
		t := r.tickets[id]
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, t.Priority) {
			continue
		}
		if filter.GroupID != nil && t.GroupID != *filter.GroupID {
			continue
		}
		if filter.AssigneeID != nil {
			if t.AssignedStaffID == nil || *t.AssignedStaffID != *filter.AssigneeID {
				continue
			}
		} else if filter.Unassigned && t.AssignedStaffID != nil {
			continue
		}
		if filter.SearchTerm != nil && !matchesSearch(t, *filter.SearchTerm) {
			continue
		}
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	// same paging defaults as the SQL implementation
	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func matchesSearch(t *domain.Ticket, term string) bool {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.TicketID), needle) ||
		strings.Contains(strings.ToLower(t.UserName), needle) ||
		strings.Contains(strings.ToLower(t.Subject), needle)
}

func (r *memTicketRepo) CountByStatus(_ context.Context) (map[domain.TicketStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[domain.TicketStatus]int64)
	for _, t := range r.tickets {
		counts[t.Status]++
	}
	return counts, nil
}

func (r *memTicketRepo) BulkAssign(_ context.Context, ticketIDs []string, staffID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var affected int64
	for _, id := range ticketIDs {
		if t, ok := r.tickets[id]; ok {
			sid := staffID
			t.AssignedStaffID = &sid
			affected++
		}
	}
	return affected, nil
}

func (r *memTicketRepo) BulkUpdateStatus(_ context.Context, ticketIDs []string, status domain.TicketStatus, closedAt *time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var affected int64
	for _, id := range ticketIDs {
		if t, ok := r.tickets[id]; ok {
			t.Status = status
			t.ClosedAt = closedAt
			affected++
		}
	}
	return affected, nil
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func containsPriority(priorities []domain.TicketPriority, priority domain.TicketPriority) bool {
	for _, p := range priorities {
		if p == priority {
			return true
		}
	}
	return false
}

type memMessageRepo struct {
	mu       sync.Mutex
	seq      int
	messages []domain.Message
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{}
}

func (r *memMessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	msg.ID = fmt.Sprintf("msg-%04d", r.seq)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	// the attachments column is NOT NULL with an empty-array default, so
	// the stored row never carries nil
	if msg.Attachments == nil {
		msg.Attachments = json.RawMessage("[]")
	}
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *memMessageRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Message
	for _, m := range r.messages {
		if m.TicketID == ticketID {
			result = append(result, m)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *memMessageRepo) LastByTicket(ctx context.Context, ticketID string) (*domain.Message, error) {
	msgs, _ := r.ListByTicket(ctx, ticketID)
	if len(msgs) == 0 {
		return nil, pgx.ErrNoRows
	}
	last := msgs[len(msgs)-1]
	return &last, nil
}

func (r *memMessageRepo) MarkUserMessagesRead(_ context.Context, ticketID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var marked int64
	for i := range r.messages {
		m := &r.messages[i]
		if m.TicketID == ticketID && m.Origin == domain.OriginUser && !m.Read {
			m.Read = true
			marked++
		}
	}
	return marked, nil
}

func (r *memMessageRepo) UnreadCount(_ context.Context, ticketID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, m := range r.messages {
		if m.TicketID == ticketID && m.Origin == domain.OriginUser && !m.Read {
			count++
		}
	}
	return count, nil
}

func (r *memMessageRepo) UnreadCounts(ctx context.Context, ticketIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(ticketIDs))
	for _, id := range ticketIDs {
		n, _ := r.UnreadCount(ctx, id)
		if n > 0 {
			counts[id] = n
		}
	}
	return counts, nil
}

func (r *memMessageRepo) TotalUnread(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, m := range r.messages {
		if m.Origin == domain.OriginUser && !m.Read {
			count++
		}
	}
	return count, nil
}

type memGroupRepo struct {
	mu     sync.Mutex
	groups map[int64]domain.Group
}

func newMemGroupRepo(groups ...domain.Group) *memGroupRepo {
	r := &memGroupRepo{groups: map[int64]domain.Group{}}
	for _, g := range groups {
		r.groups[g.GroupID] = g
	}
	return r
}

func (r *memGroupRepo) Create(_ context.Context, group *domain.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[group.GroupID] = *group
	return nil
}

func (r *memGroupRepo) Update(_ context.Context, group *domain.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[group.GroupID] = *group
	return nil
}

func (r *memGroupRepo) GetByGroupID(_ context.Context, groupID int64) (*domain.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[groupID]; ok {
		return &g, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *memGroupRepo) List(_ context.Context) ([]domain.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Group
	for _, g := range r.groups {
		result = append(result, g)
	}
	return result, nil
}

type memTagRepo struct {
	mu         sync.Mutex
	tags       map[string]domain.Tag
	ticketTags map[string][]string
}

func newMemTagRepo(tags ...domain.Tag) *memTagRepo {
	r := &memTagRepo{tags: map[string]domain.Tag{}, ticketTags: map[string][]string{}}
	for _, tag := range tags {
		r.tags[tag.ID] = tag
	}
	return r
}

func (r *memTagRepo) Create(_ context.Context, tag *domain.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tag.ID == "" {
		tag.ID = fmt.Sprintf("tag-%d", len(r.tags)+1)
	}
	r.tags[tag.ID] = *tag
	return nil
}

func (r *memTagRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tags, id)
	return nil
}

func (r *memTagRepo) GetByID(_ context.Context, id string) (*domain.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tag, ok := r.tags[id]; ok {
		return &tag, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *memTagRepo) List(_ context.Context) ([]domain.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Tag
	for _, tag := range r.tags {
		result = append(result, tag)
	}
	return result, nil
}

func (r *memTagRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Tag
	for _, id := range r.ticketTags[ticketID] {
		if tag, ok := r.tags[id]; ok {
			result = append(result, tag)
		}
	}
	return result, nil
}

func (r *memTagRepo) ReplaceForTicket(_ context.Context, ticketID string, tagIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticketTags[ticketID] = append([]string(nil), tagIDs...)
	return nil
}

func (r *memTagRepo) AddToTickets(_ context.Context, ticketIDs []string, tagID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticketID := range ticketIDs {
		existing := r.ticketTags[ticketID]
		found := false
		for _, id := range existing {
			if id == tagID {
				found = true
				break
			}
		}
		if !found {
			r.ticketTags[ticketID] = append(existing, tagID)
		}
	}
	return nil
}

type fakeResolver struct {
	mu       sync.Mutex
	identity vk.Identity
	calls    int
}

func (r *fakeResolver) ResolveUser(_ context.Context, userID int64, _ string) vk.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.identity.Name == "" {
		return vk.FallbackIdentity(userID)
	}
	return r.identity
}

type sentMessage struct {
	userID int64
	text   string
	token  string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *fakeSender) SendMessage(_ context.Context, userID int64, text, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{userID: userID, text: text, token: accessToken})
	return nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) byType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []events.Event
	for _, e := range d.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}
