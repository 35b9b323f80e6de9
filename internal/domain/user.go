package domain

import "time"

// User is the canonical account record, reconciled across local
// (phone/password) and federated (GitHub, Weibo) sign-in methods.
// Pass is nil for accounts created purely through an OAuth provider.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Phone     *string   `json:"phone,omitempty" db:"phone"`
	Email     *string   `json:"email,omitempty" db:"email"`
	Pass      *string   `json:"-" db:"pass"`
	AvatarURL *string   `json:"avatar_url,omitempty" db:"avatar_url"`
	GithubID  *int64    `json:"-" db:"github_id"`
	WeiboID   *int64    `json:"-" db:"weibo_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// GithubProfile is the subset of the GitHub user API consumed on callback.
type GithubProfile struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// WeiboProfile is the subset of the Weibo users/show API consumed on callback.
type WeiboProfile struct {
	ID         int64  `json:"id"`
	ScreenName string `json:"screen_name"`
	AvatarURL  string `json:"avatar_large"`
}
