package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"
	"go.uber.org/zap"

	ngerrors "github.com/iamwavecut/ngprep/internal/errors"
	"github.com/iamwavecut/ngprep/internal/utils/text"
)

const requestIDHeader = "X-Request-Id"

type requestIDKey struct{}

// Normalizer is the part of the pipeline the API needs.
type Normalizer interface {
	Normalize(ctx context.Context, input any) string
	NormalizeBatch(ctx context.Context, inputs []any) ([]string, error)
}

type API struct {
	normalizer Normalizer
	access     *zap.Logger
	maxBody    int64
	l          *log.Entry
}

func NewAPI(normalizer Normalizer, access *zap.Logger, maxBody int64) *API {
	if access == nil {
		access = zap.NewNop()
	}
	return &API{
		normalizer: normalizer,
		access:     access,
		maxBody:    maxBody,
		l:          log.WithField("context", "api"),
	}
}

type (
	normalizeRequest struct {
		Text any `json:"text"`
	}

	normalizeResponse struct {
		Text      string `json:"text"`
		RequestID string `json:"request_id"`
	}

	batchRequest struct {
		Texts []any `json:"texts"`
	}

	batchResponse struct {
		Texts     []string `json:"texts"`
		RequestID string   `json:"request_id"`
	}

	explainResponse struct {
		Steps     []text.Step `json:"steps"`
		RequestID string      `json:"request_id"`
	}

	errorResponse struct {
		Error     string `json:"error"`
		RequestID string `json:"request_id"`
	}
)

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/normalize", a.handleNormalize)
	mux.HandleFunc("POST /v1/normalize/batch", a.handleBatch)
	mux.HandleFunc("POST /v1/explain", a.handleExplain)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return a.withRequestID(a.withAccessLog(mux))
}

func (a *API) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if !a.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, normalizeResponse{
		Text:      a.normalizer.Normalize(r.Context(), req.Text),
		RequestID: requestID(r.Context()),
	})
}

func (a *API) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !a.decode(w, r, &req) {
		return
	}
	texts, err := a.normalizer.NormalizeBatch(r.Context(), req.Texts)
	if err != nil {
		a.l.WithError(err).Warn("batch normalization aborted")
		a.fail(w, r, http.StatusServiceUnavailable, ngerrors.ErrInternal)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Texts: texts, RequestID: requestID(r.Context())})
}

func (a *API) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if !a.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, explainResponse{Steps: text.Explain(req.Text), RequestID: requestID(r.Context())})
}

// decode reads a JSON body, writing the error response itself on failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, a.maxBody)
	defer body.Close()

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.fail(w, r, http.StatusRequestEntityTooLarge, ngerrors.ErrRequestTooLarge)
			return false
		}
		a.fail(w, r, http.StatusBadRequest, ngerrors.ErrInvalidInput)
		return false
	}
	return true
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: requestID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		log.WithField("context", "api").WithError(err).Debug("cant write response")
	}
}

func (a *API) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.New()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *API) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.access.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID(r.Context())),
		)
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
