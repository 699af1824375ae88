package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supportdesk/helpdesk-bridge/internal/domain"
)

// TagRepository manages labels and their ticket associations.
type TagRepository interface {
	Create(ctx context.Context, tag *domain.Tag) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Tag, error)
	List(ctx context.Context) ([]domain.Tag, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Tag, error)
	ReplaceForTicket(ctx context.Context, ticketID string, tagIDs []string) error
	AddToTickets(ctx context.Context, ticketIDs []string, tagID string) error
}

type tagRepository struct {
	pool *pgxpool.Pool
}

// NewTagRepository instantiates the repository.
func NewTagRepository(pool *pgxpool.Pool) TagRepository {
	return &tagRepository{pool: pool}
}

func (r *tagRepository) Create(ctx context.Context, tag *domain.Tag) error {
	const query = `
        INSERT INTO tags (name, color)
        VALUES ($1,$2)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, tag.Name, tag.Color).Scan(&tag.ID, &tag.CreatedAt)
}

func (r *tagRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tags WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *tagRepository) GetByID(ctx context.Context, id string) (*domain.Tag, error) {
	const query = `SELECT id, name, color, created_at FROM tags WHERE id=$1`
	var tag domain.Tag
	if err := r.pool.QueryRow(ctx, query, id).Scan(&tag.ID, &tag.Name, &tag.Color, &tag.CreatedAt); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *tagRepository) List(ctx context.Context) ([]domain.Tag, error) {
	const query = `SELECT id, name, color, created_at FROM tags ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTags(rows)
}

func (r *tagRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Tag, error) {
	const query = `
        SELECT t.id, t.name, t.color, t.created_at
        FROM tags t
        JOIN ticket_tags tt ON tt.tag_id = t.id
        WHERE tt.ticket_id=$1
        ORDER BY t.name ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTags(rows)
}

// ReplaceForTicket swaps the full tag set of a ticket in one transaction.
func (r *tagRepository) ReplaceForTicket(ctx context.Context, ticketID string, tagIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM ticket_tags WHERE ticket_id=$1`, ticketID); err != nil {
		return err
	}
	for _, tagID := range tagIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO ticket_tags (ticket_id, tag_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
			ticketID, tagID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *tagRepository) AddToTickets(ctx context.Context, ticketIDs []string, tagID string) error {
	const query = `
        INSERT INTO ticket_tags (ticket_id, tag_id)
        SELECT unnest($1::text[]), $2
        ON CONFLICT DO NOTHING`
	_, err := r.pool.Exec(ctx, query, ticketIDs, tagID)
	return err
}

func scanTags(rows pgx.Rows) ([]domain.Tag, error) {
	var result []domain.Tag
	for rows.Next() {
		var tag domain.Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Color, &tag.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, tag)
	}
	return result, rows.Err()
}
