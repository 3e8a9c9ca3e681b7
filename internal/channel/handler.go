package channel

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/apperror"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/response"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Profile serves GET .../channel/{handle}.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	id, ok := session.FromContext(r.Context())
	if !ok {
		response.Error(w, h.logger, apperror.Unauthorized("unauthorized request"))
		return
	}
	p, err := h.svc.Profile(r.Context(), r.PathValue("handle"), id.User.ID)
	if err != nil {
		response.Error(w, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, p, "channel fetched successfully")
}
