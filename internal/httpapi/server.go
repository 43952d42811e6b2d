// Package httpapi exposes the grid over JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dyluth/songgrid/internal/admission"
	"github.com/dyluth/songgrid/internal/tiles"
	"github.com/dyluth/songgrid/pkg/grid"
)

const (
	// CorrelationHeader is echoed on every response.
	CorrelationHeader = "X-Correlation-Id"

	defaultMaxBodyBytes = 1 << 20
)

// Pinger is a dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Addr         string
	StaticDir    string            // Serve a single-page app from here; empty disables
	Health       map[string]Pinger // Component name -> dependency, e.g. "redis", "database"
	MaxBodyBytes int64
	Logger       *zap.Logger
}

// Server routes requests to the tiles service.
type Server struct {
	svc     *tiles.Service
	health  map[string]Pinger
	maxBody int64
	log     *zap.Logger
	Handler http.Handler
	server  *http.Server
}

type editBody struct {
	SelectedSong *tiles.SongRef `json:"selectedSong"`
	Username     string         `json:"username"`
}

type tilesResponse struct {
	Tiles []grid.TileView `json:"tiles"`
}

type editResponse struct {
	Message      string  `json:"message"`
	UpdateResult []int64 `json:"updateResult"`
}

type cooldownResponse struct {
	TimeRemaining int `json:"timeRemaining"` // Seconds
}

// NewServer builds the router. The server does not listen until ListenAndServe.
func NewServer(svc *tiles.Service, opts Options) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("tiles service cannot be nil")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		svc:     svc,
		health:  opts.Health,
		maxBody: opts.MaxBodyBytes,
		log:     log,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/allTiles", s.HandleAllTiles).Methods(http.MethodGet)
	router.HandleFunc("/api/spotify-search", s.HandleSearch).Methods(http.MethodGet)
	router.HandleFunc("/api/tiles/{row}/{col}", s.HandleEdit).Methods(http.MethodPut)
	router.HandleFunc("/api/cooldown-time", s.HandleCooldown).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.HandleHealthz).Methods(http.MethodGet)
	if opts.StaticDir != "" {
		router.PathPrefix("/").Handler(newSPAHandler(opts.StaticDir)).Methods(http.MethodGet, http.MethodHead)
	}
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorResponse(w, r, ErrNotFound)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorResponse(w, r, &ErrorResponse{StatusCode: http.StatusMethodNotAllowed, Message: "method not allowed"})
	})

	s.Handler = s.withCorrelation(router)
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s, nil
}

// ListenAndServe blocks until the server stops. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("http server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// HandleAllTiles returns the full enriched grid.
func (s *Server) HandleAllTiles(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.ListAll(r.Context())
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, tilesResponse{Tiles: views})
}

// HandleSearch proxies a free-text track search.
func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.svc.Search(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, tracks)
}

// HandleEdit places a song into one cell.
func (s *Server) HandleEdit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	row, rowErr := strconv.Atoi(vars["row"])
	col, colErr := strconv.Atoi(vars["col"])
	if rowErr != nil || colErr != nil {
		s.errorResponse(w, r, grid.Validationf("row and column must be integers"))
		return
	}

	var body editBody
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.errorResponse(w, r, &ErrorResponse{StatusCode: http.StatusRequestEntityTooLarge, Message: "request body too large"})
			return
		}
		s.errorResponse(w, r, grid.Validationf("invalid request body"))
		return
	}

	result, err := s.svc.SubmitEdit(r.Context(), tiles.EditRequest{
		Row:            row,
		Col:            col,
		Song:           body.SelectedSong,
		Username:       body.Username,
		ClientIdentity: admission.ClientIdentity(r),
	})
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, editResponse{
		Message:      "Tile updated successfully",
		UpdateResult: []int64{result.RowsAffected},
	})
}

// HandleCooldown reports how many seconds the caller must wait before editing.
func (s *Server) HandleCooldown(w http.ResponseWriter, r *http.Request) {
	remaining, err := s.svc.Cooldown(r.Context(), admission.ClientIdentity(r))
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, cooldownResponse{TimeRemaining: int(math.Ceil(remaining.Seconds()))})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	e := toErrorResponse(err)
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("correlation_id", w.Header().Get(CorrelationHeader)),
		zap.Int("status", e.StatusCode),
		zap.Error(err),
	}
	if e.StatusCode >= http.StatusInternalServerError {
		s.log.Error("request failed", fields...)
	} else {
		s.log.Debug("request rejected", fields...)
	}
	s.jsonResponse(w, e.StatusCode, e)
}

// withCorrelation echoes the caller's correlation id or assigns a new one.
func (s *Server) withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r)
	})
}
