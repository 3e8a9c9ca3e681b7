// Package channel serves the public channel page of a user.
package channel

import (
	"context"
	"strings"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/channel/entity"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/apperror"
)

type Store interface {
	GetByHandle(ctx context.Context, handle string, viewerID int64) (*entity.Profile, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Profile returns the channel of handle as seen by viewerID.
func (s *Service) Profile(ctx context.Context, handle string, viewerID int64) (entity.Profile, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" {
		return entity.Profile{}, apperror.BadRequest("handle is missing")
	}
	p, err := s.store.GetByHandle(ctx, handle, viewerID)
	if err != nil {
		return entity.Profile{}, err
	}
	return *p, nil
}
