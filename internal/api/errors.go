package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/geodata/internal/crs"
	"github.com/sells-group/geodata/internal/format"
	"github.com/sells-group/geodata/internal/geodata"
	"github.com/sells-group/geodata/internal/shapefile"
	"github.com/sells-group/geodata/internal/store"
)

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, RequestID: RequestIDFrom(r.Context())})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, format.ErrUnknownFormat),
		errors.Is(err, format.ErrUnsupportedContainer),
		errors.Is(err, crs.ErrUnknownCRS),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, shapefile.ErrIncompleteShapefile),
		errors.Is(err, shapefile.ErrMultipleLayers),
		errors.Is(err, geodata.ErrNoReader):
		return http.StatusUnprocessableEntity
	case errors.Is(err, geodata.ErrNotImplemented),
		errors.Is(err, geodata.ErrNoEngine):
		return http.StatusNotImplemented
	case errors.Is(err, store.ErrRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		s.log.Error("request error", zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
	}
	writeError(w, r, status, err.Error())
}
