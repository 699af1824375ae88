package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supportdesk/helpdesk-bridge/internal/domain"
)

// GroupRepository handles persistence for connected platform groups.
type GroupRepository interface {
	Create(ctx context.Context, group *domain.Group) error
	Update(ctx context.Context, group *domain.Group) error
	GetByGroupID(ctx context.Context, groupID int64) (*domain.Group, error)
	List(ctx context.Context) ([]domain.Group, error)
}

type groupRepository struct {
	pool *pgxpool.Pool
}

// NewGroupRepository instantiates the repository.
func NewGroupRepository(pool *pgxpool.Pool) GroupRepository {
	return &groupRepository{pool: pool}
}

const groupColumns = `id, group_id, name, access_token, confirmation_token, secret_key, active_flag, created_at, updated_at`

func (r *groupRepository) Create(ctx context.Context, group *domain.Group) error {
	const query = `
        INSERT INTO groups (group_id, name, access_token, confirmation_token, secret_key, active_flag)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		group.GroupID,
		group.Name,
		group.AccessToken,
		group.ConfirmationToken,
		group.SecretKey,
		group.Active,
	).Scan(&group.ID, &group.CreatedAt, &group.UpdatedAt)
}

func (r *groupRepository) Update(ctx context.Context, group *domain.Group) error {
	const query = `
        UPDATE groups
        SET name=$1, access_token=$2, confirmation_token=$3, secret_key=$4, active_flag=$5, updated_at=NOW()
        WHERE group_id=$6`
	cmd, err := r.pool.Exec(ctx, query,
		group.Name,
		group.AccessToken,
		group.ConfirmationToken,
		group.SecretKey,
		group.Active,
		group.GroupID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *groupRepository) GetByGroupID(ctx context.Context, groupID int64) (*domain.Group, error) {
	const query = `
        SELECT ` + groupColumns + `
        FROM groups WHERE group_id=$1`
	var group domain.Group
	if err := r.pool.QueryRow(ctx, query, groupID).Scan(
		&group.ID,
		&group.GroupID,
		&group.Name,
		&group.AccessToken,
		&group.ConfirmationToken,
		&group.SecretKey,
		&group.Active,
		&group.CreatedAt,
		&group.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *groupRepository) List(ctx context.Context) ([]domain.Group, error) {
	const query = `
        SELECT ` + groupColumns + `
        FROM groups ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Group
	for rows.Next() {
		var group domain.Group
		if err := rows.Scan(
			&group.ID,
			&group.GroupID,
			&group.Name,
			&group.AccessToken,
			&group.ConfirmationToken,
			&group.SecretKey,
			&group.Active,
			&group.CreatedAt,
			&group.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, group)
	}
	return result, rows.Err()
}
