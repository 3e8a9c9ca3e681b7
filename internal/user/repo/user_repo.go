package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/apperror"
)

const userColumns = `id, handle, email, full_name, password_hash, avatar_url,
	cover_image_url, refresh_token, created_at, updated_at`

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row and fills the timestamps assigned by the database.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) (*entity.User, error) {
	q := `INSERT INTO users (id,handle,email,full_name,password_hash,avatar_url,cover_image_url)
		  VALUES (:id,:handle,:email,:full_name,:password_hash,:avatar_url,:cover_image_url)
		  RETURNING created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, u)
	if err != nil {
		return nil, translate(err, "user")
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, translate(err, "user")
		}
		return nil, apperror.Internal("create user", errors.New("no row returned"))
	}
	if err := rows.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, apperror.Internal("create user", err)
	}
	return u, nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		return nil, translate(err, "user")
	}
	return &row, nil
}

// GetByHandleOrEmail matches either identifier. Blank arguments never match.
func (r *UserRepo) GetByHandleOrEmail(ctx context.Context, handle, email string) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users
		WHERE ($1 <> '' AND handle=$1) OR ($2 <> '' AND email=$2)
		ORDER BY id LIMIT 1`
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, handle, email); err != nil {
		return nil, translate(err, "user")
	}
	return &row, nil
}

func (r *UserRepo) ExistsByHandleOrEmail(ctx context.Context, handle, email string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE handle=$1 OR email=$2)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, q, handle, email); err != nil {
		return false, translate(err, "user")
	}
	return ok, nil
}

// SetRefreshToken overwrites the single outstanding refresh token.
func (r *UserRepo) SetRefreshToken(ctx context.Context, id int64, token string) error {
	const q = `UPDATE users SET refresh_token=$2, updated_at=NOW() WHERE id=$1`
	return r.exec(ctx, q, id, token)
}

// RotateRefreshToken replaces current with next only while current is still
// the stored token. A concurrent rotation makes the loser see NotFound.
func (r *UserRepo) RotateRefreshToken(ctx context.Context, id int64, current, next string) error {
	const q = `UPDATE users SET refresh_token=$3, updated_at=NOW() WHERE id=$1 AND refresh_token=$2`
	return r.exec(ctx, q, id, current, next)
}

func (r *UserRepo) ClearRefreshToken(ctx context.Context, id int64) error {
	const q = `UPDATE users SET refresh_token=NULL, updated_at=NOW() WHERE id=$1`
	return r.exec(ctx, q, id)
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	const q = `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`
	return r.exec(ctx, q, id, hash)
}

// UpdateAccount sets email and full name. An empty argument keeps the stored value.
func (r *UserRepo) UpdateAccount(ctx context.Context, id int64, email, fullName string) (*entity.User, error) {
	const q = `UPDATE users SET
			email=COALESCE(NULLIF($2, ''), email),
			full_name=COALESCE(NULLIF($3, ''), full_name),
			updated_at=NOW()
		WHERE id=$1 RETURNING ` + userColumns
	return r.updateReturning(ctx, q, id, email, fullName)
}

func (r *UserRepo) UpdateAvatar(ctx context.Context, id int64, url string) (*entity.User, error) {
	const q = `UPDATE users SET avatar_url=$2, updated_at=NOW() WHERE id=$1 RETURNING ` + userColumns
	return r.updateReturning(ctx, q, id, url)
}

func (r *UserRepo) UpdateCoverImage(ctx context.Context, id int64, url string) (*entity.User, error) {
	const q = `UPDATE users SET cover_image_url=$2, updated_at=NOW() WHERE id=$1 RETURNING ` + userColumns
	return r.updateReturning(ctx, q, id, url)
}

// WatchHistory lists the videos id has watched, most recent first.
func (r *UserRepo) WatchHistory(ctx context.Context, id int64) ([]entity.WatchedVideo, error) {
	const q = `SELECT v.id, v.title, v.description, v.video_url, v.thumbnail_url,
			v.duration_seconds, v.views, wh.watched_at,
			o.handle AS owner_handle, o.full_name AS owner_full_name, o.avatar_url AS owner_avatar
		FROM watch_history wh
		JOIN videos v ON v.id = wh.video_id
		JOIN users o ON o.id = v.owner_id
		WHERE wh.user_id=$1
		ORDER BY wh.watched_at DESC`
	var rows []struct {
		ID            int64     `db:"id"`
		Title         string    `db:"title"`
		Description   string    `db:"description"`
		VideoURL      string    `db:"video_url"`
		ThumbnailURL  string    `db:"thumbnail_url"`
		Duration      float64   `db:"duration_seconds"`
		Views         int64     `db:"views"`
		WatchedAt     time.Time `db:"watched_at"`
		OwnerHandle   string    `db:"owner_handle"`
		OwnerFullName string    `db:"owner_full_name"`
		OwnerAvatar   string    `db:"owner_avatar"`
	}
	if err := r.db.SelectContext(ctx, &rows, q, id); err != nil {
		return nil, translate(err, "watch history")
	}
	out := make([]entity.WatchedVideo, 0, len(rows))
	for _, row := range rows {
		out = append(out, entity.WatchedVideo{
			ID:          row.ID,
			Title:       row.Title,
			Description: row.Description,
			VideoURL:    row.VideoURL,
			Thumbnail:   row.ThumbnailURL,
			Duration:    row.Duration,
			Views:       row.Views,
			WatchedAt:   row.WatchedAt,
			Owner: entity.VideoOwner{
				Handle:   row.OwnerHandle,
				FullName: row.OwnerFullName,
				Avatar:   row.OwnerAvatar,
			},
		})
	}
	return out, nil
}

func (r *UserRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return translate(err, "user")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperror.Internal("rows affected", err)
	}
	if n == 0 {
		return apperror.NotFound("user not found")
	}
	return nil
}

func (r *UserRepo) updateReturning(ctx context.Context, q string, args ...any) (*entity.User, error) {
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, args...); err != nil {
		return nil, translate(err, "user")
	}
	return &row, nil
}

// translate maps driver errors onto the apperror taxonomy.
func translate(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound(what + " not found")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return apperror.Wrap(apperror.KindConflict, "user with email or handle already exists", err)
	}
	return apperror.Internal("query "+what, err)
}
