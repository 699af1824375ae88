package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supportdesk/helpdesk-bridge/internal/domain"
)

// CreateTicketFunc builds the ticket to insert when no active one exists.
// It runs inside the find-or-create critical section, so it must not
// perform network calls; identity resolution happens before, only the
// ticket-id allocation happens here.
type CreateTicketFunc func(ctx context.Context) (*domain.Ticket, error)

// TicketFilter captures staff search parameters.
type TicketFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	GroupID    *int64
	AssigneeID *string
	Unassigned bool
	SearchTerm *string
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence. FindOrCreateActive and
// LastTicketIDForDay carry the serialization contract: implementations must
// make find-or-create atomic per (user, group) key.
type TicketRepository interface {
	FindOrCreateActive(ctx context.Context, userID, groupID int64, create CreateTicketFunc) (*domain.Ticket, bool, error)
	GetByTicketID(ctx context.Context, ticketID string) (*domain.Ticket, error)
	UpdateStatus(ctx context.Context, ticketID string, status domain.TicketStatus, closedAt *time.Time) error
	Assign(ctx context.Context, ticketID, staffID string) error
	UpdatePriority(ctx context.Context, ticketID string, priority domain.TicketPriority) error
	LastTicketIDForDay(ctx context.Context, dayPrefix string) (string, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountByStatus(ctx context.Context) (map[domain.TicketStatus]int64, error)
	BulkAssign(ctx context.Context, ticketIDs []string, staffID string) (int64, error)
	BulkUpdateStatus(ctx context.Context, ticketIDs []string, status domain.TicketStatus, closedAt *time.Time) (int64, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `ticket_id, user_id, user_name, user_avatar, subject, status, priority,
               group_id, assigned_staff_id, created_at, updated_at, closed_at`

// FindOrCreateActive looks up the most recent active ticket for the
// (user, group) pair and inserts a freshly built one when none exists. The
// lookup and the insert run in one transaction under an advisory lock keyed
// on the pair, so a burst of messages from the same user yields exactly one
// ticket.
func (r *ticketRepository) FindOrCreateActive(ctx context.Context, userID, groupID int64, create CreateTicketFunc) (*domain.Ticket, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	lockKey := fmt.Sprintf("ticket-active:%d:%d", groupID, userID)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return nil, false, err
	}

	const findQuery = `
        SELECT ` + ticketColumns + `
        FROM tickets
        WHERE user_id=$1 AND group_id=$2 AND status = ANY($3)
        ORDER BY created_at DESC
        LIMIT 1`
	ticket, err := scanTicket(tx.QueryRow(ctx, findQuery, userID, groupID, statusStrings(domain.ActiveStatuses)))
	if err == nil {
		return ticket, false, tx.Commit(ctx)
	}
	if err != pgx.ErrNoRows {
		return nil, false, err
	}

	fresh, err := create(ctx)
	if err != nil {
		return nil, false, err
	}
	const insertQuery = `
        INSERT INTO tickets (ticket_id, user_id, user_name, user_avatar, subject, status, priority, group_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING created_at, updated_at`
	if err := tx.QueryRow(ctx, insertQuery,
		fresh.TicketID,
		fresh.UserID,
		fresh.UserName,
		fresh.UserAvatar,
		fresh.Subject,
		fresh.Status,
		fresh.Priority,
		fresh.GroupID,
	).Scan(&fresh.CreatedAt, &fresh.UpdatedAt); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return fresh, true, nil
}

func (r *ticketRepository) GetByTicketID(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	const query = `
        SELECT ` + ticketColumns + `
        FROM tickets WHERE ticket_id=$1`
	return scanTicket(r.pool.QueryRow(ctx, query, ticketID))
}

// UpdateStatus writes status and closed_at as one atomic unit.
func (r *ticketRepository) UpdateStatus(ctx context.Context, ticketID string, status domain.TicketStatus, closedAt *time.Time) error {
	const query = `
        UPDATE tickets SET status=$1, closed_at=$2, updated_at=NOW()
        WHERE ticket_id=$3`
	cmd, err := r.pool.Exec(ctx, query, status, closedAt, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) Assign(ctx context.Context, ticketID, staffID string) error {
	const query = `
        UPDATE tickets SET assigned_staff_id=$1, updated_at=NOW()
        WHERE ticket_id=$2`
	cmd, err := r.pool.Exec(ctx, query, staffID, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) UpdatePriority(ctx context.Context, ticketID string, priority domain.TicketPriority) error {
	const query = `
        UPDATE tickets SET priority=$1, updated_at=NOW()
        WHERE ticket_id=$2`
	cmd, err := r.pool.Exec(ctx, query, priority, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// LastTicketIDForDay returns the lexicographically last ticket id with the
// given YYYYMMDD prefix, or "" when the day has no tickets yet.
func (r *ticketRepository) LastTicketIDForDay(ctx context.Context, dayPrefix string) (string, error) {
	const query = `
        SELECT ticket_id FROM tickets
        WHERE ticket_id LIKE $1 || '-%'
        ORDER BY ticket_id DESC
        LIMIT 1`
	var id string
	if err := r.pool.QueryRow(ctx, query, dayPrefix).Scan(&id); err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		args = append(args, statusStrings(filter.Statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(filter.Priorities) > 0 {
		priorities := make([]string, len(filter.Priorities))
		for i, p := range filter.Priorities {
			priorities[i] = string(p)
		}
		args = append(args, priorities)
		clauses = append(clauses, fmt.Sprintf("priority = ANY($%d)", len(args)))
	}
	if filter.GroupID != nil {
		args = append(args, *filter.GroupID)
		clauses = append(clauses, fmt.Sprintf("group_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assigned_staff_id=$%d", len(args)))
	} else if filter.Unassigned {
		clauses = append(clauses, "assigned_staff_id IS NULL")
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(LOWER(ticket_id) LIKE %s OR LOWER(user_name) LIKE %s OR LOWER(subject) LIKE %s)",
			placeholder, placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountByStatus(ctx context.Context) (map[domain.TicketStatus]int64, error) {
	const query = `SELECT status, COUNT(*) FROM tickets GROUP BY status`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TicketStatus]int64)
	for rows.Next() {
		var status domain.TicketStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *ticketRepository) BulkAssign(ctx context.Context, ticketIDs []string, staffID string) (int64, error) {
	const query = `
        UPDATE tickets SET assigned_staff_id=$1, updated_at=NOW()
        WHERE ticket_id = ANY($2)`
	cmd, err := r.pool.Exec(ctx, query, staffID, ticketIDs)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *ticketRepository) BulkUpdateStatus(ctx context.Context, ticketIDs []string, status domain.TicketStatus, closedAt *time.Time) (int64, error) {
	const query = `
        UPDATE tickets SET status=$1, closed_at=$2, updated_at=NOW()
        WHERE ticket_id = ANY($3)`
	cmd, err := r.pool.Exec(ctx, query, status, closedAt, ticketIDs)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func statusStrings(statuses []domain.TicketStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.TicketID,
		&ticket.UserID,
		&ticket.UserName,
		&ticket.UserAvatar,
		&ticket.Subject,
		&ticket.Status,
		&ticket.Priority,
		&ticket.GroupID,
		&ticket.AssignedStaffID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
