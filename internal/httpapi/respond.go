package httpapi

// #region imports
import (
	"encoding/json"
	"errors"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	"github.com/scuhci/focusmode-backend/internal/judgment"
	"github.com/scuhci/focusmode-backend/internal/participant"
)

// #endregion

// #region write-json

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zlog.Error().Err(err).Msg("write response")
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// #endregion write-json

// #region error-mapping

// writeError maps the error taxonomy onto status codes: caller fault is
// 400, unknown participants 401, corrupt stored state 500. Anything
// unrecognized is a 500 with its detail kept out of the response body.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, judgment.ErrInvalidInput):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, participant.ErrNotFound):
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, participant.ErrAlreadyEnrolled):
		writeMessage(w, http.StatusConflict, "Participant already onboarded")
	case errors.Is(err, participant.ErrCorruptState):
		zlog.Error().Err(err).Msg("corrupt participant state")
		writeMessage(w, http.StatusInternalServerError, "Internal inconsistency")
	default:
		zlog.Error().Err(err).Msg("request failed")
		writeMessage(w, http.StatusInternalServerError, "Internal error")
	}
}

// #endregion error-mapping
