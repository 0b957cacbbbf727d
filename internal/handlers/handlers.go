package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Xenocryptix/inference-webapp/internal/imaging"
	"github.com/Xenocryptix/inference-webapp/internal/metrics"
	"github.com/Xenocryptix/inference-webapp/internal/model"
)

const imageField = "image"

type Classifier interface {
	Classify(ctx context.Context, img image.Image) (*model.Prediction, error)
}

type Denoiser interface {
	Denoise(ctx context.Context, img image.Image) (*image.Gray, error)
}

type Options struct {
	Logger         *log.Logger
	Metrics        *metrics.Metrics
	MaxUploadBytes int64
	CORSOrigin     string
}

type Handler struct {
	classifier Classifier
	denoiser   Denoiser
	logger     *log.Logger
	metrics    *metrics.Metrics
	maxUpload  int64
	corsOrigin string
}

func NewHandler(classifier Classifier, denoiser Denoiser, opts Options) *Handler {
	h := &Handler{
		classifier: classifier,
		denoiser:   denoiser,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		maxUpload:  opts.MaxUploadBytes,
		corsOrigin: opts.CORSOrigin,
	}
	if h.logger == nil {
		h.logger = log.New("handlers")
		h.logger.SetLevel(log.OFF)
	}
	if h.metrics == nil {
		h.metrics = metrics.New(prometheus.NewRegistry())
	}
	if h.maxUpload <= 0 {
		h.maxUpload = 10 << 20
	}
	if h.corsOrigin == "" {
		h.corsOrigin = "*"
	}
	return h
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string          `json:"status"`
	Models map[string]bool `json:"models"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "healthy",
		Models: map[string]bool{
			"classifier": h.classifier != nil,
			"denoiser":   h.denoiser != nil,
		},
	}
	if h.classifier == nil || h.denoiser == nil {
		resp.Status = "degraded"
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if h.classifier == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Classification model not loaded")
		return
	}

	img, ok := h.readImage(w, r)
	if !ok {
		return
	}

	start := time.Now()
	result, err := h.classifier.Classify(r.Context(), img)
	h.metrics.ObserveInference("classifier", time.Since(start), err)
	if err != nil {
		h.logger.Errorf("Prediction error: %v", err)
		h.writeError(w, http.StatusInternalServerError, "Prediction failed")
		return
	}

	h.logger.Debugf("Predicted %s (%.4f)", result.PredictedClass, result.Confidence)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Denoise(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if h.denoiser == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Denoise model not loaded")
		return
	}

	img, ok := h.readImage(w, r)
	if !ok {
		return
	}

	start := time.Now()
	denoised, err := h.denoiser.Denoise(r.Context(), img)
	h.metrics.ObserveInference("denoiser", time.Since(start), err)
	if err != nil {
		h.logger.Errorf("Denoise error: %v", err)
		h.writeError(w, http.StatusInternalServerError, "Denoising failed")
		return
	}

	// encode first so a failure can still become a JSON error
	var buf bytes.Buffer
	if err := imaging.EncodePNG(&buf, denoised); err != nil {
		h.logger.Errorf("Denoise error: %v", err)
		h.writeError(w, http.StatusInternalServerError, "Denoising failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warnf("Failed to write png response: %v", err)
	}
}

// readImage decodes the multipart "image" field. On failure the error
// response has already been written.
func (h *Handler) readImage(w http.ResponseWriter, r *http.Request) (image.Image, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			h.writeError(w, http.StatusRequestEntityTooLarge, "Image too large")
		case errors.Is(err, http.ErrNotMultipart):
			h.writeError(w, http.StatusBadRequest, "No image uploaded")
		default:
			h.logger.Warnf("Failed to parse form: %v", err)
			h.writeError(w, http.StatusBadRequest, "Failed to parse form")
		}
		return nil, false
	}

	file, header, err := r.FormFile(imageField)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "No image uploaded")
		return nil, false
	}
	defer file.Close()

	h.logger.Infof("Received file: %s, size: %d bytes", header.Filename, header.Size)

	img, format, err := imaging.Decode(file)
	if err != nil {
		h.logger.Warnf("Rejected upload %s: %v", header.Filename, err)
		h.writeError(w, http.StatusBadRequest, "Invalid image format")
		return nil, false
	}

	h.logger.Debugf("Image format: %s, dimensions: %dx%d", format, img.Bounds().Dx(), img.Bounds().Dy())
	return img, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warnf("Failed to encode response: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}
