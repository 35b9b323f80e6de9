package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// FollowRepository handles follow-edge data access operations.
type FollowRepository struct {
	db *sqlx.DB
}

// NewFollowRepository creates a new FollowRepository.
func NewFollowRepository(db *sqlx.DB) *FollowRepository {
	return &FollowRepository{db: db}
}

// Exists reports whether the directed edge follower -> followee exists.
func (r *FollowRepository) Exists(ctx context.Context, followerID, followeeID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = $1 AND followee_id = $2)`,
		followerID, followeeID)
	if err != nil {
		return false, fmt.Errorf("follow exists %d->%d: %w", followerID, followeeID, err)
	}
	return exists, nil
}

// Create inserts the edge. Inserting an existing edge is a no-op.
func (r *FollowRepository) Create(ctx context.Context, followerID, followeeID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO follows (follower_id, followee_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		followerID, followeeID)
	if err != nil {
		return fmt.Errorf("create follow %d->%d: %w", followerID, followeeID, err)
	}
	return nil
}

// Delete removes the edge. Deleting a missing edge is a no-op.
func (r *FollowRepository) Delete(ctx context.Context, followerID, followeeID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`,
		followerID, followeeID)
	if err != nil {
		return fmt.Errorf("delete follow %d->%d: %w", followerID, followeeID, err)
	}
	return nil
}
