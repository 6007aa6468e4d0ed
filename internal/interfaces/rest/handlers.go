// Package rest exposes the collected telemetry over HTTP: JSON queries,
// streamed CSV export, a live websocket feed and operational endpoints.
package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"satrack/internal/application/port"
	"satrack/internal/application/service"
)

type Handler struct {
	query    *service.QueryService
	export   *service.ExportService
	hub      *Hub
	registry *prometheus.Registry
}

func NewHandler(query *service.QueryService, export *service.ExportService, hub *Hub, registry *prometheus.Registry) *Handler {
	return &Handler{query: query, export: export, hub: hub, registry: registry}
}

// Routes wires all endpoints onto a fresh mux, wrapped with CORS.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/current", get(h.handleCurrent))
	mux.HandleFunc("/api/records", get(h.handleRecords))
	mux.HandleFunc("/api/export", get(h.handleExport))
	mux.HandleFunc("/api/stats", get(h.handleStats))
	mux.HandleFunc("/healthz", get(h.handleHealthz))
	if h.hub != nil {
		mux.Handle("/api/live", h.hub)
	}
	if h.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	}
	return withCORS(mux)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	p, err := h.query.Current(r.Context())
	if errors.Is(err, port.ErrNoData) {
		writeError(w, http.StatusNotFound, "no data")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("current position lookup failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	pageSize, err := intParam(q.Get("page_size"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "page_size must be an integer")
		return
	}

	result, err := h.query.Records(r.Context(), q.Get("day"), page, pageSize)
	switch {
	case errors.Is(err, service.ErrInvalidPage) || errors.Is(err, service.ErrInvalidDay):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		log.Error().Err(err).Msg("records query failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("day")

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+h.export.Filename(day)+`"`)

	cw := &countingWriter{dst: w}
	err := h.export.WriteCSV(r.Context(), day, cw)
	if err == nil {
		return
	}
	if errors.Is(err, service.ErrInvalidDay) {
		// day is validated before the first row, the response is still open
		w.Header().Del("Content-Disposition")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Error().Err(err).Str("day", day).Msg("csv export failed")
	if cw.n > 0 {
		// bytes are already on the wire, the client gets a truncated file
		return
	}
	w.Header().Del("Content-Disposition")
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.query.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("stats query failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
