package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/channel/entity"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/apperror"
)

type ProfileRepo struct {
	db *sqlx.DB
}

func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// GetByHandle aggregates the channel page of handle in one statement. subs is
// the set of users subscribed to the channel, fol the set of channels the
// user follows.
func (r *ProfileRepo) GetByHandle(ctx context.Context, handle string, viewerID int64) (*entity.Profile, error) {
	const q = `SELECT u.id, u.handle, u.full_name, u.email, u.avatar_url, u.cover_image_url,
			COUNT(DISTINCT subs.subscriber_id) AS subscribers_count,
			COUNT(DISTINCT fol.channel_id) AS following_count,
			COALESCE(BOOL_OR(subs.subscriber_id = $2), false) AS is_subscribed
		FROM users u
		LEFT JOIN subscriptions subs ON subs.channel_id = u.id
		LEFT JOIN subscriptions fol ON fol.subscriber_id = u.id
		WHERE u.handle = $1
		GROUP BY u.id`
	var p entity.Profile
	if err := r.db.GetContext(ctx, &p, q, handle, viewerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("channel does not exist")
		}
		return nil, apperror.Internal("query channel profile", err)
	}
	return &p, nil
}
