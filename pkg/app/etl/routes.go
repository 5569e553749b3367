package etl

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apperrors "github.com/moviesearch/movies-etl/pkg/app/errors"
	apphttp "github.com/moviesearch/movies-etl/pkg/app/http"
	"github.com/moviesearch/movies-etl/pkg/config"
	"github.com/moviesearch/movies-etl/pkg/content"
	"github.com/moviesearch/movies-etl/pkg/etl"
)

// EngineStatus exposes the state of the sync engine.
type EngineStatus interface {
	Status() etl.Status
	IsReady() bool
	LastCycle() (etl.CycleSummary, bool)
}

// CheckpointReader returns the raw checkpoint map.
type CheckpointReader interface {
	All(ctx context.Context) (map[string]any, error)
}

// DocumentReader fetches an indexed document.
type DocumentReader interface {
	Get(ctx context.Context, index, id string) (json.RawMessage, bool, error)
}

type handler struct {
	engine      EngineStatus
	checkpoints CheckpointReader
	documents   DocumentReader
}

func newRouter(cfg *config.ETLConfig, engine EngineStatus, checkpoints CheckpointReader, documents DocumentReader, logger *zap.Logger) http.Handler {
	h := &handler{engine: engine, checkpoints: checkpoints, documents: documents}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apphttp.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultHTTPMiddlewareTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !engine.IsReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", apphttp.HandleError(logger, h.status))
		r.Get("/checkpoints", apphttp.HandleError(logger, h.listCheckpoints))
		r.Get("/documents/{index}/{id}", apphttp.HandleError(logger, h.getDocument))
	})

	return r
}

type statusResponse struct {
	Status    etl.Status        `json:"status"`
	Ready     bool              `json:"ready"`
	LastCycle *etl.CycleSummary `json:"last_cycle,omitempty"`
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) error {
	resp := statusResponse{Status: h.engine.Status(), Ready: h.engine.IsReady()}
	if last, ok := h.engine.LastCycle(); ok {
		resp.LastCycle = &last
	}
	return apphttp.WriteJSON(w, resp)
}

func (h *handler) listCheckpoints(w http.ResponseWriter, r *http.Request) error {
	all, err := h.checkpoints.All(r.Context())
	if err != nil {
		return apperrors.GeneralError(err)
	}
	return apphttp.WriteJSON(w, map[string]any{"checkpoints": all})
}

func (h *handler) getDocument(w http.ResponseWriter, r *http.Request) error {
	index, id := chi.URLParam(r, "index"), chi.URLParam(r, "id")
	if _, ok := content.EntityForIndex(index); !ok {
		return apperrors.BadRequestError(nil, "unknown index "+index)
	}

	doc, found, err := h.documents.Get(r.Context(), index, id)
	if err != nil {
		return apperrors.DependencyError(err, "search index unavailable")
	}
	if !found {
		return apperrors.ResourceNotFoundError(nil, "document not found")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(doc)
	return err
}
