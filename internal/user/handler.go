package user

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/media"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/apperror"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/response"
)

const maxJSONBytes = 1 << 20

// HandlerConfig holds request limits and cookie settings.
type HandlerConfig struct {
	Cookies        session.Cookies
	UploadDir      string
	MaxUploadBytes int64
}

// Handler exposes HTTP endpoints for account operations.
type Handler struct {
	svc    *UserService
	cfg    HandlerConfig
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, cfg HandlerConfig, logger *zap.SugaredLogger) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	return &Handler{svc: svc, cfg: cfg, logger: logger}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(w, r); err != nil {
		response.Error(w, h.logger, err)
		return
	}
	avatar, err := media.Stage(r, "avatar", h.cfg.UploadDir)
	if err != nil {
		h.logger.Debugw("stage avatar failed", "err", err)
		response.Error(w, h.logger, apperror.BadRequest("invalid avatar file"))
		return
	}
	cover, err := media.Stage(r, "coverImage", h.cfg.UploadDir)
	if err != nil {
		avatar.Discard()
		h.logger.Debugw("stage cover image failed", "err", err)
		response.Error(w, h.logger, apperror.BadRequest("invalid cover image file"))
		return
	}

	u, err := h.svc.Register(r.Context(), RegisterInput{
		FullName:   r.FormValue("fullName"),
		Handle:     r.FormValue("handle"),
		Email:      r.FormValue("email"),
		Password:   r.FormValue("password"),
		Avatar:     avatar,
		CoverImage: cover,
	})
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	response.JSON(w, http.StatusCreated, u, "user registered successfully")
}

// LoginRequest login payload. Either handle or email identifies the user.
type LoginRequest struct {
	Handle   string `json:"handle"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User         entity.PublicUser `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		response.Error(w, h.logger, err)
		return
	}
	res, err := h.svc.Login(r.Context(), LoginInput{Handle: req.Handle, Email: req.Email, Password: req.Password})
	if err != nil {
		h.logger.Debugw("login failed", "err", err)
		response.Error(w, h.logger, err)
		return
	}
	h.cfg.Cookies.Set(w, res.Tokens)
	response.JSON(w, http.StatusOK, LoginResponse{
		User:         res.User,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	}, "user logged in successfully")
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	if err := h.svc.Logout(r.Context(), id.User.ID); err != nil {
		response.Error(w, h.logger, err)
		return
	}
	h.cfg.Cookies.Clear(w)
	response.JSON(w, http.StatusOK, struct{}{}, "user logged out")
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken accepts the refresh cookie or a JSON body.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	presented := session.RefreshTokenFromCookie(r)
	if presented == "" {
		var req RefreshRequest
		if err := h.decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, h.logger, apperror.Unauthorized("unauthorized request"))
			return
		}
		presented = req.RefreshToken
	}
	pair, err := h.svc.RefreshAccessToken(r.Context(), presented)
	if err != nil {
		h.logger.Debugw("refresh rejected", "err", err)
		response.Error(w, h.logger, err)
		return
	}
	h.cfg.Cookies.Set(w, pair)
	response.JSON(w, http.StatusOK, pair, "access token refreshed")
}

type ChangePasswordRequest struct {
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		response.Error(w, h.logger, err)
		return
	}
	err := h.svc.ChangePassword(r.Context(), id.User.ID, ChangePasswordInput{
		OldPassword:     req.OldPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, struct{}{}, "password changed successfully")
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	response.JSON(w, http.StatusOK, id.User, "current user fetched successfully")
}

type UpdateAccountRequest struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req UpdateAccountRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		response.Error(w, h.logger, err)
		return
	}
	u, err := h.svc.UpdateProfile(r.Context(), id.User.ID, req.Email, req.FullName)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, u, "account details updated successfully")
}

func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", h.svc.UpdateAvatar, "avatar updated successfully")
}

func (h *Handler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", h.svc.UpdateCoverImage, "cover image updated successfully")
}

func (h *Handler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	videos, err := h.svc.WatchHistory(r.Context(), id.User.ID)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, videos, "watch history fetched successfully")
}

func (h *Handler) updateImage(w http.ResponseWriter, r *http.Request, field string,
	update func(context.Context, int64, media.Optional) (entity.PublicUser, error), message string) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	if err := h.parseMultipart(w, r); err != nil {
		response.Error(w, h.logger, err)
		return
	}
	file, err := media.Stage(r, field, h.cfg.UploadDir)
	if err != nil {
		h.logger.Debugw("stage upload failed", "field", field, "err", err)
		response.Error(w, h.logger, apperror.BadRequest("invalid "+field+" file"))
		return
	}
	u, err := update(r.Context(), id.User.ID, file)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, u, message)
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (session.Identity, bool) {
	id, ok := session.FromContext(r.Context())
	if !ok {
		response.Error(w, h.logger, apperror.Unauthorized("unauthorized request"))
	}
	return id, ok
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.BadRequest("upload is too large")
		}
		h.logger.Debugw("invalid multipart form", "err", err)
		return apperror.BadRequest("invalid multipart form")
	}
	return nil
}

// decodeJSON reports an empty body as a BadRequest wrapping io.EOF so callers
// can treat the body as optional.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes)).Decode(v)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return apperror.Wrap(apperror.KindBadRequest, "request body is required", io.EOF)
	}
	h.logger.Debugw("invalid payload", "err", err)
	return apperror.BadRequest("invalid payload")
}
