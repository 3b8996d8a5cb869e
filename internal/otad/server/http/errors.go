package http

import (
	"errors"
	"net/http"

	"github.com/autopeer-io/otad/internal/otad/ota"
	"github.com/autopeer-io/otad/internal/otad/slot"
)

// statusFor maps an engine error to the HTTP status reported to the uploader.
func statusFor(err error) int {
	var readErr *ota.ReadError
	switch {
	case errors.Is(err, ota.ErrSessionBusy), errors.Is(err, ota.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, ota.ErrEmptyUpload), errors.Is(err, errNoUpdateField):
		return http.StatusBadRequest
	case errors.Is(err, slot.ErrCapacityExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ota.ErrNoActiveSession):
		return http.StatusNotFound
	case errors.As(err, &readErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}
