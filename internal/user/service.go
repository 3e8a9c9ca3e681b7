package user

import (
	"context"
	"crypto/subtle"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/media"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/apperror"
)

// Store is the credential store used by UserService.
type Store interface {
	Create(ctx context.Context, u *entity.User) (*entity.User, error)
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByHandleOrEmail(ctx context.Context, handle, email string) (*entity.User, error)
	ExistsByHandleOrEmail(ctx context.Context, handle, email string) (bool, error)
	SetRefreshToken(ctx context.Context, id int64, token string) error
	RotateRefreshToken(ctx context.Context, id int64, current, next string) error
	ClearRefreshToken(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
	UpdateAccount(ctx context.Context, id int64, email, fullName string) (*entity.User, error)
	UpdateAvatar(ctx context.Context, id int64, url string) (*entity.User, error)
	UpdateCoverImage(ctx context.Context, id int64, url string) (*entity.User, error)
	WatchHistory(ctx context.Context, id int64) ([]entity.WatchedVideo, error)
}

type TokenIssuer interface {
	IssuePair(id token.Identity) (token.Pair, error)
	VerifyRefreshToken(s string) (*token.RefreshClaims, error)
}

// LoginLimiter throttles failed logins per identifier.
type LoginLimiter interface {
	Check(ctx context.Context, identifier string) error
	Fail(ctx context.Context, identifier string)
	Reset(ctx context.Context, identifier string)
}

type IDGenerator interface {
	Next() int64
}

type noopLimiter struct{}

func (noopLimiter) Check(context.Context, string) error { return nil }
func (noopLimiter) Fail(context.Context, string)        {}
func (noopLimiter) Reset(context.Context, string)       {}

// Deps wires UserService. Hasher, Limiter and Logger are optional.
type Deps struct {
	Store    Store
	Tokens   TokenIssuer
	Uploader media.Uploader
	IDs      IDGenerator
	Hasher   PasswordHasher
	Limiter  LoginLimiter
	Logger   *zap.SugaredLogger
}

// UserService orchestrates authentication and account flows.
type UserService struct {
	store    Store
	tokens   TokenIssuer
	uploader media.Uploader
	ids      IDGenerator
	hasher   PasswordHasher
	limiter  LoginLimiter
	logger   *zap.SugaredLogger
}

func NewUserService(d Deps) *UserService {
	if d.Hasher == nil {
		d.Hasher = BcryptHasher{Cost: DefaultPasswordCost}
	}
	if d.Limiter == nil {
		d.Limiter = noopLimiter{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	return &UserService{
		store:    d.Store,
		tokens:   d.Tokens,
		uploader: d.Uploader,
		ids:      d.IDs,
		hasher:   d.Hasher,
		limiter:  d.Limiter,
		logger:   d.Logger,
	}
}

type RegisterInput struct {
	FullName   string
	Handle     string
	Email      string
	Password   string
	Avatar     media.Optional
	CoverImage media.Optional
}

// Register creates an account. Staged files are always cleaned up.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (entity.PublicUser, error) {
	defer in.Avatar.Discard()
	defer in.CoverImage.Discard()

	fullName := strings.TrimSpace(in.FullName)
	handle := normalize(in.Handle)
	email := normalize(in.Email)
	if fullName == "" || handle == "" || email == "" || strings.TrimSpace(in.Password) == "" {
		return entity.PublicUser{}, apperror.BadRequest("all fields are required")
	}

	exists, err := s.store.ExistsByHandleOrEmail(ctx, handle, email)
	if err != nil {
		return entity.PublicUser{}, err
	}
	if exists {
		return entity.PublicUser{}, apperror.Conflict("user with email or handle already exists")
	}

	avatar, ok := in.Avatar.Get()
	if !ok {
		return entity.PublicUser{}, apperror.BadRequest("avatar file is required")
	}
	avatarURL, err := s.uploader.Upload(ctx, avatar.Path)
	if err != nil || avatarURL == "" {
		s.logger.Warnw("avatar upload failed", "err", err)
		return entity.PublicUser{}, apperror.Wrap(apperror.KindBadRequest, "avatar file is required", err)
	}

	var coverURL string
	if cover, ok := in.CoverImage.Get(); ok {
		coverURL, err = s.uploader.Upload(ctx, cover.Path)
		if err != nil {
			s.logger.Warnw("cover image upload failed", "err", err)
			coverURL = ""
		}
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		s.removeUploads(ctx, avatarURL, coverURL)
		return entity.PublicUser{}, err
	}

	u, err := s.store.Create(ctx, &entity.User{
		ID:            s.ids.Next(),
		Handle:        handle,
		Email:         email,
		FullName:      fullName,
		PasswordHash:  hash,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
	})
	if err != nil {
		s.removeUploads(ctx, avatarURL, coverURL)
		return entity.PublicUser{}, err
	}
	s.logger.Infow("user registered", "user_id", u.ID, "handle", u.Handle)
	return u.Public(), nil
}

type LoginInput struct {
	Handle   string
	Email    string
	Password string
}

type LoginResult struct {
	User   entity.PublicUser `json:"user"`
	Tokens token.Pair        `json:"-"`
}

// Login authenticates by handle or email and rotates the stored refresh token.
func (s *UserService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	handle := normalize(in.Handle)
	email := normalize(in.Email)
	if handle == "" && email == "" {
		return LoginResult{}, apperror.BadRequest("handle or email is required")
	}
	identifier := handle
	if identifier == "" {
		identifier = email
	}
	if err := s.limiter.Check(ctx, identifier); err != nil {
		return LoginResult{}, err
	}

	u, err := s.store.GetByHandleOrEmail(ctx, handle, email)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return LoginResult{}, apperror.NotFound("user does not exist")
		}
		return LoginResult{}, err
	}

	ok, err := s.hasher.Verify(ctx, in.Password, u.PasswordHash)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		s.limiter.Fail(ctx, identifier)
		return LoginResult{}, apperror.Unauthorized("invalid user credentials")
	}
	s.limiter.Reset(ctx, identifier)

	pair, err := s.tokens.IssuePair(identityOf(u))
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.store.SetRefreshToken(ctx, u.ID, pair.RefreshToken); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: u.Public(), Tokens: pair}, nil
}

// Logout forgets the stored refresh token.
func (s *UserService) Logout(ctx context.Context, userID int64) error {
	return s.store.ClearRefreshToken(ctx, userID)
}

// RefreshAccessToken exchanges the stored refresh token for a new pair.
func (s *UserService) RefreshAccessToken(ctx context.Context, presented string) (token.Pair, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return token.Pair{}, apperror.Unauthorized("unauthorized request")
	}
	claims, err := s.tokens.VerifyRefreshToken(presented)
	if err != nil {
		return token.Pair{}, err
	}

	u, err := s.store.GetByID(ctx, claims.UserID)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return token.Pair{}, apperror.Unauthorized("invalid refresh token")
		}
		return token.Pair{}, err
	}
	if u.RefreshToken == nil || !ConstantTimeCompare(*u.RefreshToken, presented) {
		return token.Pair{}, apperror.Unauthorized("refresh token is expired or used")
	}

	pair, err := s.tokens.IssuePair(identityOf(u))
	if err != nil {
		return token.Pair{}, err
	}
	if err := s.store.RotateRefreshToken(ctx, u.ID, presented, pair.RefreshToken); err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return token.Pair{}, apperror.Unauthorized("refresh token is expired or used")
		}
		return token.Pair{}, err
	}
	return pair, nil
}

type ChangePasswordInput struct {
	OldPassword     string
	NewPassword     string
	ConfirmPassword string
}

// ChangePassword validates the input before touching the hash.
func (s *UserService) ChangePassword(ctx context.Context, userID int64, in ChangePasswordInput) error {
	if strings.TrimSpace(in.NewPassword) == "" {
		return apperror.BadRequest("new password is required")
	}
	if in.NewPassword != in.ConfirmPassword {
		return apperror.BadRequest("new password and confirm password do not match")
	}
	if in.OldPassword == "" {
		return apperror.BadRequest("old password is required")
	}

	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(ctx, in.OldPassword, u.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Unauthorized("invalid old password")
	}

	hash, err := s.hasher.Hash(ctx, in.NewPassword)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, userID, hash)
}

// CurrentUser resolves id to its public projection.
func (s *UserService) CurrentUser(ctx context.Context, id int64) (entity.PublicUser, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return entity.PublicUser{}, err
	}
	return u.Public(), nil
}

// UpdateProfile sets email and full name. A blank field keeps its value.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, email, fullName string) (entity.PublicUser, error) {
	email = normalize(email)
	fullName = strings.TrimSpace(fullName)
	if email == "" && fullName == "" {
		return entity.PublicUser{}, apperror.BadRequest("email or full name is required")
	}
	u, err := s.store.UpdateAccount(ctx, userID, email, fullName)
	if err != nil {
		return entity.PublicUser{}, err
	}
	return u.Public(), nil
}

func (s *UserService) UpdateAvatar(ctx context.Context, userID int64, file media.Optional) (entity.PublicUser, error) {
	url, err := s.uploadRequired(ctx, file, "avatar")
	if err != nil {
		return entity.PublicUser{}, err
	}
	u, err := s.store.UpdateAvatar(ctx, userID, url)
	if err != nil {
		s.removeUploads(ctx, url)
		return entity.PublicUser{}, err
	}
	return u.Public(), nil
}

func (s *UserService) UpdateCoverImage(ctx context.Context, userID int64, file media.Optional) (entity.PublicUser, error) {
	url, err := s.uploadRequired(ctx, file, "cover image")
	if err != nil {
		return entity.PublicUser{}, err
	}
	u, err := s.store.UpdateCoverImage(ctx, userID, url)
	if err != nil {
		s.removeUploads(ctx, url)
		return entity.PublicUser{}, err
	}
	return u.Public(), nil
}

func (s *UserService) WatchHistory(ctx context.Context, userID int64) ([]entity.WatchedVideo, error) {
	return s.store.WatchHistory(ctx, userID)
}

func (s *UserService) uploadRequired(ctx context.Context, file media.Optional, what string) (string, error) {
	defer file.Discard()
	f, ok := file.Get()
	if !ok {
		return "", apperror.BadRequest(what + " file is missing")
	}
	url, err := s.uploader.Upload(ctx, f.Path)
	if err != nil || url == "" {
		s.logger.Warnw(what+" upload failed", "err", err)
		return "", apperror.Wrap(apperror.KindBadRequest, "error while uploading "+what, err)
	}
	return url, nil
}

// removeUploads deletes objects that no stored user points to. It runs even
// if ctx is already cancelled.
func (s *UserService) removeUploads(ctx context.Context, urls ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, u := range urls {
		if u == "" {
			continue
		}
		if err := s.uploader.Delete(ctx, u); err != nil {
			s.logger.Warnw("failed to remove orphaned upload", "url", u, "err", err)
		}
	}
}

func identityOf(u *entity.User) token.Identity {
	return token.Identity{ID: u.ID, Email: u.Email, Handle: u.Handle, FullName: u.FullName}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ConstantTimeCompare reports whether a and b are equal without leaking
// where they differ.
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
