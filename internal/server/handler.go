package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"runnerd/internal/cache"
	"runnerd/internal/config"
	"runnerd/internal/wire"
)

// Handler handles HTTP runner invocations: POST /<method> with a
// multipart body of payload parts.
type Handler struct {
	methods     *Registry
	cache       cache.Cache
	maxBodySize int64
	logger      zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(methods *Registry, respCache cache.Cache, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		methods:     methods,
		cache:       respCache,
		maxBodySize: cfg.MaxBodySize,
		logger:      logger.With().Str("component", "handler").Logger(),
	}
}

// ServeHTTP handles HTTP requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	methodName := strings.Trim(r.URL.Path, "/")
	if methodName == "" || strings.Contains(methodName, "/") {
		h.writeError(w, http.StatusNotFound, "no such method")
		return
	}
	method, ok := h.methods.Get(methodName)
	if !ok {
		h.writeError(w, http.StatusNotFound, "no such method: "+methodName)
		return
	}

	// A retried submission of an already-executed batch is answered
	// from cache.
	requestID := r.Header.Get(wire.RequestIDHeader)
	if requestID != "" {
		if cached, found := h.cache.Get(requestID); found {
			h.logger.Debug().
				Str("method", methodName).
				Str("requestId", requestID).
				Msg("replaying cached response")
			h.writeCached(w, cached)
			return
		}
	}

	if h.maxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	}

	batched, err := wire.DecodeRequest(r)
	if err != nil {
		h.logger.Debug().Err(err).Str("method", methodName).Msg("bad request body")
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := method.Run(r.Context(), batched)
	if err != nil {
		h.logger.Error().Err(err).Str("method", methodName).Msg("method failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	meta, err := json.Marshal(result.Meta)
	if err != nil {
		h.logger.Error().Err(err).Str("method", methodName).Msg("unserializable result metadata")
		h.writeError(w, http.StatusInternalServerError, "unserializable result metadata")
		return
	}

	resp := &cache.Response{
		Body:        result.Data,
		MetaJSON:    string(meta),
		ContentType: wire.ContentType(result.Container),
	}
	if requestID != "" {
		h.cache.Set(requestID, resp)
	}

	h.logger.Debug().
		Str("method", methodName).
		Int("slots", batched.Len()).
		Int("resultBytes", len(result.Data)).
		Msg("invocation completed")

	h.writeCached(w, resp)
}

// writeCached writes a response (fresh or replayed) with the protocol headers.
func (h *Handler) writeCached(w http.ResponseWriter, resp *cache.Response) {
	w.Header().Set(wire.PayloadMetaHeader, resp.MetaJSON)
	w.Header().Set("Content-Type", resp.ContentType)
	if _, err := w.Write(resp.Body); err != nil {
		h.logger.Debug().Err(err).Msg("failed to write response")
	}
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Debug().Err(err).Msg("failed to write error response")
	}
}
