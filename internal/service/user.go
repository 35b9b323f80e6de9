package service

import (
	"context"
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/sumire/clique/internal/domain"
)

const fuzzySearchLimit = 10

// SearchStore is the read-side user access consumed by UserService.
type SearchStore interface {
	Exists(ctx context.Context, id int64) (bool, error)
	SearchByUsername(ctx context.Context, fragment string, limit int) ([]domain.User, error)
}

// FollowStore manages follow edges.
type FollowStore interface {
	Exists(ctx context.Context, followerID, followeeID int64) (bool, error)
	Create(ctx context.Context, followerID, followeeID int64) error
	Delete(ctx context.Context, followerID, followeeID int64) error
}

// UserService covers the non-auth user operations: fuzzy search and the
// follow toggle.
type UserService struct {
	users       SearchStore
	follows     FollowStore
	usernameMax int
}

// NewUserService creates a new UserService.
func NewUserService(users SearchStore, follows FollowStore, usernameMax int) *UserService {
	return &UserService{
		users:       users,
		follows:     follows,
		usernameMax: usernameMax,
	}
}

// FuzzySearch returns users whose username contains the given fragment.
// Empty, over-length or undecodable input yields an empty list without
// touching the store; invalid input never errors here.
func (s *UserService) FuzzySearch(ctx context.Context, username string) ([]domain.User, error) {
	if username == "" || utf8.RuneCountInString(username) > s.usernameMax {
		return []domain.User{}, nil
	}

	decoded, err := url.QueryUnescape(username)
	if err != nil {
		return []domain.User{}, nil
	}

	users, err := s.users.SearchByUsername(ctx, decoded, fuzzySearchLimit)
	if err != nil {
		return nil, fmt.Errorf("fuzzy search: %w", err)
	}
	return users, nil
}

// ToggleFollow flips the follow edge: it is created when absent and
// removed when present. Both the follow and unfollow endpoints dispatch
// here, so two consecutive follows cancel each other; the toggle is not
// idempotent. The read-modify-write is not mutually excluded, matching
// the store's single-key guarantees.
func (s *UserService) ToggleFollow(ctx context.Context, followerID, followeeID int64) error {
	exists, err := s.users.Exists(ctx, followeeID)
	if err != nil {
		return fmt.Errorf("check follow target: %w", err)
	}
	if !exists {
		return domain.ErrParamsError
	}

	following, err := s.follows.Exists(ctx, followerID, followeeID)
	if err != nil {
		return fmt.Errorf("check follow edge: %w", err)
	}

	if following {
		if err := s.follows.Delete(ctx, followerID, followeeID); err != nil {
			return fmt.Errorf("remove follow edge: %w", err)
		}
		return nil
	}

	if err := s.follows.Create(ctx, followerID, followeeID); err != nil {
		return fmt.Errorf("create follow edge: %w", err)
	}
	return nil
}
