package entity

import "time"

// User represents an account row in the `users` table.
type User struct {
	ID            int64     `db:"id"`
	Handle        string    `db:"handle"`
	Email         string    `db:"email"`
	FullName      string    `db:"full_name"`
	PasswordHash  string    `db:"password_hash"`
	AvatarURL     string    `db:"avatar_url"`
	CoverImageURL string    `db:"cover_image_url"`
	RefreshToken  *string   `db:"refresh_token"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// PublicUser is the only shape of a user that leaves the service. It has no
// password or refresh token field.
type PublicUser struct {
	ID         int64     `json:"_id,string"`
	Handle     string    `json:"handle"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	Avatar     string    `json:"avatar"`
	CoverImage string    `json:"coverImage"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID,
		Handle:     u.Handle,
		Email:      u.Email,
		FullName:   u.FullName,
		Avatar:     u.AvatarURL,
		CoverImage: u.CoverImageURL,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// VideoOwner is the owner projection attached to watch history entries.
type VideoOwner struct {
	Handle   string `json:"handle"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar"`
}

// WatchedVideo is one entry of a user's watch history.
type WatchedVideo struct {
	ID          int64      `json:"_id,string"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	VideoURL    string     `json:"videoFile"`
	Thumbnail   string     `json:"thumbnail"`
	Duration    float64    `json:"duration"`
	Views       int64      `json:"views"`
	WatchedAt   time.Time  `json:"watchedAt"`
	Owner       VideoOwner `json:"owner"`
}
