package http

import (
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/otad/internal/otad/ota"
	"github.com/autopeer-io/otad/internal/otad/slot"
	"github.com/autopeer-io/otad/internal/pkg/metrics"
	"github.com/autopeer-io/otad/pkg/log"
)

//go:embed index.html
var indexHTML []byte

// updateField is the multipart field the upload page posts the image in.
const updateField = "update"

var errNoUpdateField = errors.New("multipart upload has no \"update\" field")

// Engine is the part of the update engine the HTTP API uses.
type Engine interface {
	ota.Uploader
	Active() (ota.SessionHandle, bool)
	Status() ota.Status
}

// SlotLister lists the firmware slots.
type SlotLister interface {
	Slots() []slot.Slot
}

// Handler serves the upload API.
type Handler struct {
	engine    Engine
	slots     SlotLister
	chunkSize int
	ready     func() error
}

// NewHandler builds the router. ready may be nil.
func NewHandler(engine Engine, slots SlotLister, chunkSize int, ready func() error) http.Handler {
	h := &Handler{
		engine:    engine,
		slots:     slots,
		chunkSize: chunkSize,
		ready:     ready,
	}

	r := mux.NewRouter()
	r.Use(logRequests)
	r.HandleFunc("/", h.index).Methods(http.MethodGet)
	r.HandleFunc("/update", h.upload).Methods(http.MethodPost)
	r.HandleFunc("/update", h.abort).Methods(http.MethodDelete)
	r.HandleFunc("/status", h.status).Methods(http.MethodGet)
	r.HandleFunc("/slots", h.listSlots).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

func (h *Handler) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

// upload streams the request body into a new session. The response is only
// written once the session committed or aborted.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	body, size, err := imageReader(r)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := ota.Stream(r.Context(), h.engine, body, h.chunkSize,
		ota.WithSource("http"),
		ota.WithExpectedSize(size))
	if err != nil {
		log.Warn("HTTP upload failed", "remote", r.RemoteAddr, "error", err)
		writeError(w, err)
		return
	}

	log.Info("HTTP upload committed", "remote", r.RemoteAddr, "slot", out.Slot, "written", out.Written)
	w.Header().Set("Connection", "close")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// imageReader returns the image stream of an upload request and its size
// when known. Multipart forms carry the image in the "update" field; any
// other body is the raw image.
func imageReader(r *http.Request) (io.Reader, int64, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return r.Body, r.ContentLength, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, 0, err
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, 0, errNoUpdateField
		}
		if err != nil {
			return nil, 0, &ota.ReadError{Err: err}
		}
		if part.FormName() == updateField {
			return part, 0, nil
		}
		_ = part.Close()
	}
}

func (h *Handler) abort(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.engine.Active()
	if !ok {
		writeError(w, ota.ErrNoActiveSession)
		return
	}

	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "aborted over HTTP"
	}
	if err := h.engine.Abort(r.Context(), handle, reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

func (h *Handler) listSlots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.slots.Slots())
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	if h.ready != nil {
		if err := h.ready(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("Failed to write response", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.code,
			"duration", time.Since(start))
	})
}
