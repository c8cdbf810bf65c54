// Package handlers contains the HTTP handlers of the portal server.
// Handlers parse requests, run the session and complaint logic, call the
// village API and answer with the {success, message, data} envelope.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aduan-desa/portal-server/internal/backend"
	"github.com/aduan-desa/portal-server/internal/validation"
	"go.uber.org/zap"
)

const (
	msgNoResponse  = "Tidak ada respons dari server"
	msgBadRequest  = "Format permintaan tidak valid"
	msgInvalid     = "Data tidak valid"
	msgInternal    = "Terjadi kesalahan pada server"
	msgNotLoggedIn = "Silakan login terlebih dahulu"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    any                    `json:"data,omitempty"`
	Errors  validation.FieldErrors `json:"errors,omitempty"`
}

// Helper: respond with JSON
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Helper: respond with error
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, envelope{Success: false, Message: message})
}

func respondOK(w http.ResponseWriter, message string, data any) {
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

// respondResult relays an API answer verbatim, status code included.
func respondResult(w http.ResponseWriter, res *backend.Result) {
	status := res.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(res.Body)
}

// respondFailure maps err onto the envelope. Validation failures list the
// offending fields; transport failures become 502.
func respondFailure(w http.ResponseWriter, logger *zap.SugaredLogger, op string, err error) {
	var fields validation.FieldErrors
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &fields):
		respondJSON(w, http.StatusUnprocessableEntity, envelope{Success: false, Message: msgInvalid, Errors: fields})
	case errors.Is(err, backend.ErrNoResponse), errors.Is(err, backend.ErrBadResponse):
		logger.Warnw("Village API unavailable", "op", op, "error", err)
		respondError(w, http.StatusBadGateway, msgNoResponse)
	case errors.As(err, &apiErr):
		status := apiErr.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		respondError(w, status, apiErr.Message)
	default:
		logger.Errorw("Request failed", "op", op, "error", err)
		respondError(w, http.StatusInternalServerError, msgInternal)
	}
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}
