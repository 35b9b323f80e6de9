package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/clique/internal/domain"
)

// UserRepository handles user data access operations.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, phone, email, pass, avatar_url, github_id, weibo_id, created_at, updated_at`

// FindByID retrieves a user by their ID.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user by id %d: %w", id, err)
	}
	return &user, nil
}

// Exists reports whether a user with the given ID exists.
func (r *UserRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id)
	if err != nil {
		return false, fmt.Errorf("user exists %d: %w", id, err)
	}
	return exists, nil
}

// FindCredentialsByPhone projects the id and password hash for a phone
// signin. Only accounts that actually carry the phone match.
func (r *UserRepository) FindCredentialsByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.findCredentials(ctx, `SELECT id, pass FROM users WHERE phone = $1`, phone)
}

// FindCredentialsByEmail projects the id and password hash for an email signin.
func (r *UserRepository) FindCredentialsByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findCredentials(ctx, `SELECT id, pass FROM users WHERE email = $1`, email)
}

func (r *UserRepository) findCredentials(ctx context.Context, query, arg string) (*domain.User, error) {
	var user struct {
		ID   int64   `db:"id"`
		Pass *string `db:"pass"`
	}
	err := r.db.GetContext(ctx, &user, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find credentials: %w", err)
	}
	return &domain.User{ID: user.ID, Pass: user.Pass}, nil
}

// FindByPhoneOrUsername returns the first user holding either the phone or
// the username, so signup can report which field collides.
func (r *UserRepository) FindByPhoneOrUsername(ctx context.Context, phone, username string) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE phone = $1 OR username = $2 LIMIT 1`,
		phone, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user by phone or username: %w", err)
	}
	return &user, nil
}

// Create inserts a locally registered user and returns the stored row.
func (r *UserRepository) Create(ctx context.Context, user domain.User) (*domain.User, error) {
	var result domain.User
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO users (username, phone, email, pass, avatar_url)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+userColumns,
		user.Username, user.Phone, user.Email, user.Pass, user.AvatarURL,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &result, nil
}

// UpsertGithubUser creates or refreshes the account linked to a GitHub
// profile, keyed on the provider's numeric id.
func (r *UserRepository) UpsertGithubUser(ctx context.Context, profile domain.GithubProfile) (*domain.User, error) {
	var result domain.User
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO users (username, email, avatar_url, github_id)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4)
		 ON CONFLICT (github_id) WHERE github_id IS NOT NULL
		 DO UPDATE SET email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
		               avatar_url = COALESCE(NULLIF(EXCLUDED.avatar_url, ''), users.avatar_url),
		               updated_at = NOW()
		 RETURNING `+userColumns,
		profile.Login, profile.Email, profile.AvatarURL, profile.ID,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("upsert github user %d: %w", profile.ID, err)
	}
	return &result, nil
}

// UpsertWeiboUser creates or refreshes the account linked to a Weibo
// profile, keyed on the provider's numeric uid.
func (r *UserRepository) UpsertWeiboUser(ctx context.Context, profile domain.WeiboProfile) (*domain.User, error) {
	var result domain.User
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO users (username, avatar_url, weibo_id)
		 VALUES ($1, NULLIF($2, ''), $3)
		 ON CONFLICT (weibo_id) WHERE weibo_id IS NOT NULL
		 DO UPDATE SET avatar_url = COALESCE(NULLIF(EXCLUDED.avatar_url, ''), users.avatar_url),
		               updated_at = NOW()
		 RETURNING `+userColumns,
		profile.ScreenName, profile.AvatarURL, profile.ID,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("upsert weibo user %d: %w", profile.ID, err)
	}
	return &result, nil
}

// SearchByUsername returns up to limit users whose username contains the
// fragment, ordered by username. Matching is case-insensitive.
func (r *UserRepository) SearchByUsername(ctx context.Context, fragment string, limit int) ([]domain.User, error) {
	users := []domain.User{}
	err := r.db.SelectContext(ctx, &users,
		`SELECT id, username, avatar_url, created_at, updated_at
		 FROM users WHERE username ILIKE '%' || $1 || '%'
		 ORDER BY username LIMIT $2`,
		fragment, limit)
	if err != nil {
		return nil, fmt.Errorf("search users by username: %w", err)
	}
	return users, nil
}
