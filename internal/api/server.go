package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"

	"github.com/masterkusok/mpprefs/internal/provider"
	"github.com/masterkusok/mpprefs/internal/raft"
	"github.com/masterkusok/mpprefs/internal/value"
)

// OriginHeader carries the resolver origin of the calling process.
const OriginHeader = "X-Prefs-Origin"

// Cluster is the raft membership surface; nil when replication is off.
type Cluster interface {
	IsLeader() bool
	Join(nodeID, addr string) error
	RemoveNodeFromCluster(nodeID string) error
}

type Server struct {
	provider *provider.Provider
	cluster  Cluster
	logger   *zap.Logger

	httpServer *http.Server
	done       chan struct{}
	doneOnce   sync.Once
}

func NewServer(p *provider.Provider, cluster Cluster, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		provider: p,
		cluster:  cluster,
		logger:   logger.Named("api"),
		done:     make(chan struct{}),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		escapedRoutePath,
		middleware.Recoverer,
		middleware.RequestID,
		s.requestLogger,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/preferences", s.handleQueryAll)
		r.Post("/preferences", s.handleInsert)
		r.Delete("/preferences", s.handleClear)
		r.Get("/preferences/{key}", s.handleQuery)
		r.Put("/preferences/{key}", s.handleUpdate)
		r.Delete("/preferences/{key}", s.handleDelete)
		r.Get("/type", s.handleType)
		r.Get("/observe", s.handleObserve)

		r.Post("/node", s.handleJoin)
		r.Delete("/node/{id}", s.handleRemoveNode)
	})
	return r
}

// Start serves until Shutdown; it returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.httpServer.RegisterOnShutdown(s.closeStreams)

	s.logger.Info("listening", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.closeStreams()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) closeStreams() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("origin", r.Header.Get(OriginHeader)))
		next.ServeHTTP(w, r)
	})
}

// escapedRoutePath makes chi match routes against the escaped request
// path. net/http only keeps RawPath when the client escaped more than
// needed, so without this a key segment would reach the handlers escaped
// in some requests and decoded in others.
func escapedRoutePath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePath == "" {
			rctx.RoutePath = r.URL.EscapedPath()
		}
		next.ServeHTTP(w, r)
	})
}

// keyParam decodes the escaped {key} segment exactly once.
func keyParam(r *http.Request) (string, error) {
	return url.PathUnescape(chi.URLParam(r, "key"))
}

func (s *Server) renderWriteError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, raft.ErrNotLeader):
		renderAPIError(w, http.StatusMisdirectedRequest, err.Error())
	case errors.Is(err, provider.ErrMissingKey):
		renderAPIError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(op, zap.Error(err))
		renderAPIError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleQueryAll(w http.ResponseWriter, r *http.Request) {
	rows, _, err := s.provider.Query(provider.CollectionURI())
	if err != nil {
		s.logger.Error("query all", zap.Error(err))
		renderAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	renderJSON(w, http.StatusOK, rowsResponse{Rows: rows})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		renderAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, ok, err := s.provider.Query(provider.ItemURI(key))
	if err != nil {
		s.logger.Error("query", zap.String("key", key), zap.Error(err))
		renderAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		renderAPIError(w, http.StatusNotFound, fmt.Sprintf("preference %q not found", key))
		return
	}
	renderJSON(w, http.StatusOK, rowsResponse{Rows: rows})
}

func decodeValues(r *http.Request) (value.ContentValues, error) {
	var cv value.ContentValues
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return cv, fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, &cv); err != nil {
		return cv, fmt.Errorf("decode content values: %w", err)
	}
	return cv, nil
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	cv, err := decodeValues(r)
	if err != nil {
		renderAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	uri, err := s.provider.Insert(provider.CollectionURI(), cv, r.Header.Get(OriginHeader))
	if err != nil {
		s.renderWriteError(w, "insert", err)
		return
	}
	renderJSON(w, http.StatusCreated, insertResponse{URI: uri.String()})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		renderAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	cv, err := decodeValues(r)
	if err != nil {
		renderAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	count, err := s.provider.Update(provider.ItemURI(key), cv, r.Header.Get(OriginHeader))
	if err != nil {
		s.renderWriteError(w, "update", err)
		return
	}
	renderJSON(w, http.StatusOK, countResponse{Count: count})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		renderAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	count, err := s.provider.Delete(provider.ItemURI(key), r.Header.Get(OriginHeader))
	if err != nil {
		s.renderWriteError(w, "delete", err)
		return
	}
	renderJSON(w, http.StatusOK, countResponse{Count: count})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	count, err := s.provider.Delete(provider.CollectionURI(), r.Header.Get(OriginHeader))
	if err != nil {
		s.renderWriteError(w, "clear", err)
		return
	}
	renderJSON(w, http.StatusOK, countResponse{Count: count})
}

func (s *Server) handleType(w http.ResponseWriter, r *http.Request) {
	uri, err := url.Parse(r.URL.Query().Get("uri"))
	if err != nil {
		renderAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	if m, _ := provider.MatchURI(uri); m == provider.NoMatch {
		renderAPIError(w, http.StatusBadRequest, fmt.Sprintf("unknown URL %v", uri))
		return
	}
	renderJSON(w, http.StatusOK, typeResponse{Type: s.provider.Type(uri)})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	if s.cluster == nil {
		renderAPIError(w, http.StatusNotImplemented, "replication is disabled")
		return
	}

	var request JoinRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		renderAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err = json.Unmarshal(body, &request); err != nil {
		renderAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err = s.cluster.Join(request.NodeID, request.Addr); err != nil {
		s.logger.Error("join", zap.String("node_id", request.NodeID), zap.Error(err))
		renderAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	if s.cluster == nil {
		renderAPIError(w, http.StatusNotImplemented, "replication is disabled")
		return
	}

	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		renderAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err = s.cluster.RemoveNodeFromCluster(id); err != nil {
		s.renderWriteError(w, "remove node", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
