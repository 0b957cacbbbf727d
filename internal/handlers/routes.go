package handlers

import (
	"net/http"
	"time"
)

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.wrap("/health", h.Health))
	mux.HandleFunc("/predict", h.wrap("/predict", h.Predict))
	mux.HandleFunc("/denoise", h.wrap("/denoise", h.Denoise))
	mux.Handle("/metrics", h.metrics.Handler())

	return mux
}

func (h *Handler) wrap(path string, next http.HandlerFunc) http.HandlerFunc {
	return h.instrument(path, h.enableCORS(next))
}

func (h *Handler) enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", h.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument logs every request and records it under the route path, not the
// raw URL, to keep label cardinality bounded.
func (h *Handler) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		begin := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		elapsed := time.Since(begin)
		h.logger.Infof("%s %s %d %s", r.Method, r.URL.Path, rec.status, elapsed)
		h.metrics.ObserveRequest(path, r.Method, rec.status, elapsed)
	}
}
