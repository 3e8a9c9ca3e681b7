package user

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/media"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/apperror"
)

// memStore is an in-memory Store with the same error kinds as the SQL repo.
type memStore struct {
	mu      sync.Mutex
	failErr error // returned by every write when set
	users   map[int64]*entity.User
	history map[int64][]entity.WatchedVideo
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]*entity.User{}, history: map[int64][]entity.WatchedVideo{}}
}

func (m *memStore) Create(_ context.Context, u *entity.User) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	for _, x := range m.users {
		if x.Handle == u.Handle || x.Email == u.Email {
			return nil, apperror.Conflict("user with email or handle already exists")
		}
	}
	now := time.Now()
	cp := *u
	cp.CreatedAt, cp.UpdatedAt = now, now
	m.users[u.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) get(id int64) (*entity.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user not found")
	}
	return u, nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.get(id)
	if err != nil {
		return nil, err
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetByHandleOrEmail(_ context.Context, handle, email string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if (handle != "" && u.Handle == handle) || (email != "" && u.Email == email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user not found")
}

func (m *memStore) ExistsByHandleOrEmail(_ context.Context, handle, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Handle == handle || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) update(id int64, fn func(u *entity.User) error) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	u, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if err := fn(u); err != nil {
		return nil, err
	}
	u.UpdatedAt = time.Now()
	cp := *u
	return &cp, nil
}

func (m *memStore) SetRefreshToken(_ context.Context, id int64, tok string) error {
	_, err := m.update(id, func(u *entity.User) error { u.RefreshToken = &tok; return nil })
	return err
}

func (m *memStore) RotateRefreshToken(_ context.Context, id int64, current, next string) error {
	_, err := m.update(id, func(u *entity.User) error {
		if u.RefreshToken == nil || *u.RefreshToken != current {
			return apperror.NotFound("user not found")
		}
		u.RefreshToken = &next
		return nil
	})
	return err
}

func (m *memStore) ClearRefreshToken(_ context.Context, id int64) error {
	_, err := m.update(id, func(u *entity.User) error { u.RefreshToken = nil; return nil })
	return err
}

func (m *memStore) UpdatePassword(_ context.Context, id int64, hash string) error {
	_, err := m.update(id, func(u *entity.User) error { u.PasswordHash = hash; return nil })
	return err
}

func (m *memStore) UpdateAccount(_ context.Context, id int64, email, fullName string) (*entity.User, error) {
	m.mu.Lock()
	for _, u := range m.users {
		if email != "" && u.ID != id && u.Email == email {
			m.mu.Unlock()
			return nil, apperror.Conflict("user with email or handle already exists")
		}
	}
	m.mu.Unlock()
	return m.update(id, func(u *entity.User) error {
		if email != "" {
			u.Email = email
		}
		if fullName != "" {
			u.FullName = fullName
		}
		return nil
	})
}

func (m *memStore) UpdateAvatar(_ context.Context, id int64, url string) (*entity.User, error) {
	return m.update(id, func(u *entity.User) error { u.AvatarURL = url; return nil })
}

func (m *memStore) UpdateCoverImage(_ context.Context, id int64, url string) (*entity.User, error) {
	return m.update(id, func(u *entity.User) error { u.CoverImageURL = url; return nil })
}

func (m *memStore) WatchHistory(_ context.Context, id int64) ([]entity.WatchedVideo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.WatchedVideo{}, m.history[id]...), nil
}

// fakeUploader removes the local file like the real one and fails for paths
// listed in failFor.
type fakeUploader struct {
	mu       sync.Mutex
	failFor  map[string]bool
	uploaded []string
	deleted  []string
}

func (f *fakeUploader) Delete(_ context.Context, objectURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, objectURL)
	return nil
}

func (f *fakeUploader) Upload(_ context.Context, localPath string) (string, error) {
	defer os.Remove(localPath)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[filepath.Base(localPath)] {
		return "", errors.New("object store unavailable")
	}
	f.uploaded = append(f.uploaded, localPath)
	return "http://media.local/bucket/" + filepath.Base(localPath), nil
}

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) Next() int64 { return s.n.Add(1) }

type testEnv struct {
	svc      *UserService
	store    *memStore
	uploader *fakeUploader
	tokens   *token.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tm, err := token.NewManager(token.Config{
		AccessSecret:  "access-secret",
		AccessTTL:     time.Hour,
		RefreshSecret: "refresh-secret",
		RefreshTTL:    240 * time.Hour,
	})
	require.NoError(t, err)
	store := newMemStore()
	up := &fakeUploader{failFor: map[string]bool{}}
	svc := NewUserService(Deps{
		Store:    store,
		Tokens:   tm,
		Uploader: up,
		IDs:      &seqIDs{},
		Hasher:   BcryptHasher{Cost: bcrypt.MinCost},
	})
	return &testEnv{svc: svc, store: store, uploader: up, tokens: tm}
}

// stage writes a file that stands in for a multipart upload.
func stage(t *testing.T, name string) media.Optional {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("img"), 0o600))
	return media.Some(media.File{Path: p, Name: name, Size: 3})
}

func (e *testEnv) register(t *testing.T, handle, email, password string) entity.PublicUser {
	t.Helper()
	u, err := e.svc.Register(context.Background(), RegisterInput{
		FullName: "Test " + handle,
		Handle:   handle,
		Email:    email,
		Password: password,
		Avatar:   stage(t, handle+"-avatar.png"),
	})
	require.NoError(t, err)
	return u
}
