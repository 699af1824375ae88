package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supportdesk/helpdesk-bridge/internal/domain"
)

// MessageRepository manages the per-ticket message ledger. The ledger is
// append-only: messages are never updated except for the read flag.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error)
	LastByTicket(ctx context.Context, ticketID string) (*domain.Message, error)
	MarkUserMessagesRead(ctx context.Context, ticketID string) (int64, error)
	UnreadCount(ctx context.Context, ticketID string) (int64, error)
	UnreadCounts(ctx context.Context, ticketIDs []string) (map[string]int64, error)
	TotalUnread(ctx context.Context) (int64, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

const messageColumns = `id, ticket_id, external_id, text, attachments, origin, read_flag, staff_author_id, created_at`

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	// created_at stays caller-controlled for inbound messages so ledger
	// order follows the platform send time, not webhook arrival order.
	// attachments falls back to the empty array: staff replies and payloads
	// without attachments would otherwise insert NULL into a NOT NULL column.
	const query = `
        INSERT INTO messages (ticket_id, external_id, text, attachments, origin, read_flag, staff_author_id, created_at)
        VALUES ($1,$2,$3, COALESCE($4, '[]'::jsonb), $5,$6,$7, COALESCE($8, NOW()))
        RETURNING id, attachments, created_at`
	var createdAt any
	if !msg.CreatedAt.IsZero() {
		createdAt = msg.CreatedAt
	}
	return r.pool.QueryRow(ctx, query,
		msg.TicketID,
		msg.ExternalID,
		msg.Text,
		msg.Attachments,
		msg.Origin,
		msg.Read,
		msg.StaffAuthorID,
		createdAt,
	).Scan(&msg.ID, &msg.Attachments, &msg.CreatedAt)
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	const query = `
        SELECT ` + messageColumns + `
        FROM messages WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *msg)
	}
	return result, rows.Err()
}

func (r *messageRepository) LastByTicket(ctx context.Context, ticketID string) (*domain.Message, error) {
	const query = `
        SELECT ` + messageColumns + `
        FROM messages WHERE ticket_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1`
	return scanMessage(r.pool.QueryRow(ctx, query, ticketID))
}

func (r *messageRepository) MarkUserMessagesRead(ctx context.Context, ticketID string) (int64, error) {
	const query = `
        UPDATE messages SET read_flag=TRUE
        WHERE ticket_id=$1 AND origin='user' AND read_flag=FALSE`
	cmd, err := r.pool.Exec(ctx, query, ticketID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *messageRepository) UnreadCount(ctx context.Context, ticketID string) (int64, error) {
	const query = `
        SELECT COUNT(*) FROM messages
        WHERE ticket_id=$1 AND origin='user' AND read_flag=FALSE`
	var count int64
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *messageRepository) UnreadCounts(ctx context.Context, ticketIDs []string) (map[string]int64, error) {
	const query = `
        SELECT ticket_id, COUNT(*) FROM messages
        WHERE ticket_id = ANY($1) AND origin='user' AND read_flag=FALSE
        GROUP BY ticket_id`
	rows, err := r.pool.Query(ctx, query, ticketIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64, len(ticketIDs))
	for rows.Next() {
		var ticketID string
		var count int64
		if err := rows.Scan(&ticketID, &count); err != nil {
			return nil, err
		}
		counts[ticketID] = count
	}
	return counts, rows.Err()
}

func (r *messageRepository) TotalUnread(ctx context.Context) (int64, error) {
	const query = `
        SELECT COUNT(*) FROM messages WHERE origin='user' AND read_flag=FALSE`
	var count int64
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var msg domain.Message
	if err := row.Scan(
		&msg.ID,
		&msg.TicketID,
		&msg.ExternalID,
		&msg.Text,
		&msg.Attachments,
		&msg.Origin,
		&msg.Read,
		&msg.StaffAuthorID,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}
