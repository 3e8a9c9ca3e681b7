package response

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account-go/pkg/apperror"
)

// Body is the envelope of every JSON response.
type Body struct {
	Status  int    `json:"status"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// JSON writes data wrapped in the response envelope.
func JSON(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Body{Status: status, Data: data, Message: message})
}

// Error writes err using the status of its apperror kind. Internal failures
// are logged with their cause and reported with a generic message.
func Error(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	kind := apperror.KindOf(err)
	if kind == apperror.KindInternal && logger != nil {
		logger.Errorw("request failed", "err", err)
	}
	JSON(w, kind.HTTPStatus(), nil, apperror.MessageOf(err))
}
