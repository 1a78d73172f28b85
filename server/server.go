package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bbc/tams-core/cmn"
	"github.com/bbc/tams-core/deleteworker"
	"github.com/bbc/tams-core/refengine"
	"github.com/bbc/tams-core/repos"
	"github.com/bbc/tams-core/segpipeline"
)

// Deps is every collaborator the HTTP layer needs. Handlers only ever talk
// to repos/refengine/segpipeline/deleteworker, never to objstore or
// metastore directly.
type Deps struct {
	Sources    *repos.SourceRepo
	Flows      *repos.FlowRepo
	Objects    *repos.ObjectRepo
	Segments   *repos.SegmentRepo
	Collections *repos.CollectionRepo
	Backends   *repos.StorageBackendRepo
	Requests   *repos.FlowDeleteRequestRepo
	Engine     *refengine.Engine
	Pipelines  map[string]*segpipeline.Pipeline // storage backend id -> pipeline
	Worker     *deleteworker.Worker

	// AsyncDeleteThreshold is the segment count above which deleteSegments
	// promotes a request to the async flow-delete-request path instead of
	// deleting inline. Zero falls back to defaultAsyncDeleteThreshold.
	AsyncDeleteThreshold int
}

const defaultAsyncDeleteThreshold = 500

func (d *Deps) asyncDeleteThreshold() int {
	if d.AsyncDeleteThreshold > 0 {
		return d.AsyncDeleteThreshold
	}
	return defaultAsyncDeleteThreshold
}

func (d *Deps) defaultPipeline() *segpipeline.Pipeline {
	for _, p := range d.Pipelines {
		return p
	}
	return nil
}

// pipelineFor resolves the Pipeline a segment write/read should use: the
// explicit storageID if given, otherwise whichever backend is marked
// default_storage, falling back to an arbitrary pipeline if neither
// resolves (e.g. a single-backend deployment that never seeded the flag).
func (d *Deps) pipelineFor(ctx context.Context, storageID string) (*segpipeline.Pipeline, *cmn.TError) {
	if storageID != "" {
		p, ok := d.Pipelines[storageID]
		if !ok {
			return nil, cmn.NewNotFound("storage_backend", storageID)
		}
		return p, nil
	}
	if d.Backends != nil {
		if b, terr := d.Backends.FindDefault(ctx); terr == nil {
			if p, ok := d.Pipelines[b.ID]; ok {
				return p, nil
			}
		}
	}
	if p := d.defaultPipeline(); p != nil {
		return p, nil
	}
	return nil, cmn.NewStorageUnavailable("pipeline", nil)
}

// NewRouter builds the full REST surface: sources, flows, segments,
// objects, storage backends, and async flow-delete-requests. Collections
// have no routes of their own.
func NewRouter(d *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Handle("/metrics", promhttp.Handler())

	h := &handlers{d: d}

	r.Route("/sources", func(r chi.Router) {
		r.Get("/", h.listSources)
		r.Post("/", h.createSource)
		r.Route("/{sourceID}", func(r chi.Router) {
			r.Get("/", h.getSource)
			r.Delete("/", h.deleteSource)
			r.Get("/flows", h.listFlowsBySource)
		})
	})

	r.Route("/flows", func(r chi.Router) {
		r.Post("/", h.createFlow)
		r.Route("/{flowID}", func(r chi.Router) {
			r.Get("/", h.getFlow)
			r.Delete("/", h.deleteFlow)
			r.Get("/segments", h.listSegments)
			r.Post("/storage", h.allocateSegment)
			r.Post("/segments", h.registerSegment)
			r.Delete("/segments", h.deleteSegments)
			r.Post("/delete-requests", h.createDeleteRequest)
		})
	})

	r.Route("/objects/{objectID}", func(r chi.Router) {
		r.Get("/", h.getObject)
		r.Delete("/", h.deleteObject)
	})

	r.Route("/delete-requests/{requestID}", func(r chi.Router) {
		r.Get("/", h.getDeleteRequest)
	})

	r.Get("/storage-backends", h.listStorageBackends)

	r.Get("/healthz", h.healthz)

	return r
}

type handlers struct{ d *Deps }

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
