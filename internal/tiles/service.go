// Package tiles implements the two entry points of the grid: accepting edits
// behind the admission gate and returning the enriched grid.
package tiles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dyluth/songgrid/internal/admission"
	"github.com/dyluth/songgrid/internal/cellstore"
	"github.com/dyluth/songgrid/internal/enrich"
	"github.com/dyluth/songgrid/internal/spotify"
	"github.com/dyluth/songgrid/pkg/grid"
)

const (
	// DefaultMinUsername is the shortest accepted display name, in runes.
	DefaultMinUsername = 3

	// DefaultMaxUsername is the longest accepted display name, in runes.
	DefaultMaxUsername = 15
)

// Gate admits or denies writes per client. *admission.Gate implements it.
type Gate interface {
	CheckAndReserve(ctx context.Context, identity string) (admission.Decision, error)
	RemainingTime(ctx context.Context, identity string) (time.Duration, error)
}

// Enricher joins cells with provider metadata. *enrich.Pipeline implements it.
type Enricher interface {
	Enrich(ctx context.Context, cells []grid.Cell) ([]grid.TileView, error)
}

// Searcher runs free-text provider searches. *spotify.Client implements it.
type Searcher interface {
	Search(ctx context.Context, q string, limit int) ([]spotify.Track, error)
}

// Credentials yields the provider bearer token. *spotify.Client implements it.
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// Notifier announces accepted edits. *events.Publisher implements it.
type Notifier interface {
	Publish(ctx context.Context, cell grid.Cell) error
}

// SongRef identifies the chosen song in an edit request.
type SongRef struct {
	ID           string            `json:"id"`
	ExternalURLs map[string]string `json:"external_urls"`
}

// Link returns the Spotify URL of the song, or "".
func (s *SongRef) Link() string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.ExternalURLs["spotify"])
}

// EditRequest asks to place a song into one cell.
type EditRequest struct {
	Row            int
	Col            int
	Song           *SongRef
	Username       string
	ClientIdentity string
}

// EditResult reports the outcome of an accepted edit.
type EditResult struct {
	RowsAffected int64
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store    cellstore.Store
	Gate     Gate
	Enricher Enricher
	Searcher    Searcher
	Credentials Credentials // Optional; required before every grid read when set
	Notifier    Notifier    // Optional
	Logger      *zap.Logger
}

// Options tunes a Service. Zero values take defaults.
type Options struct {
	Extent      grid.Extent
	MinUsername int
	MaxUsername int
	SearchLimit int
	Now         func() time.Time
}

// Service is stateless; every call goes to the stores.
type Service struct {
	store       cellstore.Store
	gate        Gate
	enricher    Enricher
	searcher    Searcher
	credentials Credentials
	notifier    Notifier
	extent      grid.Extent
	minUsername int
	maxUsername int
	searchLimit int
	now         func() time.Time
	log         *zap.Logger
}

// New wires a service. Store, Gate and Enricher are required.
func New(deps Deps, opts Options) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if deps.Gate == nil {
		return nil, fmt.Errorf("gate cannot be nil")
	}
	if deps.Enricher == nil {
		return nil, fmt.Errorf("enricher cannot be nil")
	}

	if opts.Extent == (grid.Extent{}) {
		opts.Extent = grid.DefaultExtent()
	}
	if err := opts.Extent.Validate(); err != nil {
		return nil, err
	}
	if opts.MinUsername == 0 {
		opts.MinUsername = DefaultMinUsername
	}
	if opts.MaxUsername == 0 {
		opts.MaxUsername = DefaultMaxUsername
	}
	if opts.MinUsername < 1 || opts.MinUsername > opts.MaxUsername {
		return nil, fmt.Errorf("invalid username bounds %d..%d", opts.MinUsername, opts.MaxUsername)
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = spotify.DefaultSearchLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		store:       deps.Store,
		gate:        deps.Gate,
		enricher:    deps.Enricher,
		searcher:    deps.Searcher,
		credentials: deps.Credentials,
		notifier:    deps.Notifier,
		extent:      opts.Extent,
		minUsername: opts.MinUsername,
		maxUsername: opts.MaxUsername,
		searchLimit: opts.SearchLimit,
		now:         opts.Now,
		log:         log,
	}, nil
}

// Extent returns the configured canvas size.
func (s *Service) Extent() grid.Extent {
	return s.extent
}

// SubmitEdit validates req, reserves the client's cooldown and writes the cell.
//
// Validation failures never touch the gate. Once the reservation is made it is
// kept even if the write fails.
func (s *Service) SubmitEdit(ctx context.Context, req EditRequest) (EditResult, error) {
	cell, err := s.validate(req)
	if err != nil {
		return EditResult{}, err
	}

	decision, err := s.gate.CheckAndReserve(ctx, req.ClientIdentity)
	if err != nil {
		return EditResult{}, err
	}
	if !decision.Allowed {
		s.log.Info("edit denied by cooldown",
			zap.String("client", req.ClientIdentity),
			zap.Stringer("coord", cell.Coord),
			zap.Duration("remaining", decision.Remaining))
		return EditResult{}, &grid.AdmissionDeniedError{Remaining: decision.Remaining}
	}

	ts := s.now().UTC().Truncate(time.Millisecond)
	cell.LastUpdated = &ts

	n, err := s.store.Upsert(ctx, cell)
	if err != nil {
		s.log.Error("cell write failed after admission",
			zap.String("client", req.ClientIdentity),
			zap.Stringer("coord", cell.Coord),
			zap.Error(err))
		return EditResult{}, err
	}

	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, cell); err != nil {
			s.log.Warn("failed to announce tile update", zap.Stringer("coord", cell.Coord), zap.Error(err))
		}
	}

	s.log.Info("tile updated",
		zap.Stringer("coord", cell.Coord),
		zap.String("username", cell.Username),
		zap.String("client", req.ClientIdentity))
	return EditResult{RowsAffected: n}, nil
}

// validate checks req in order and returns the cell to write.
func (s *Service) validate(req EditRequest) (grid.Cell, error) {
	coord := grid.Coord{Row: req.Row, Col: req.Col}
	if !s.extent.Contains(coord) {
		return grid.Cell{}, grid.Validationf("tile %s is outside the %dx%d grid", coord, s.extent.Rows, s.extent.Cols)
	}

	username := strings.TrimSpace(req.Username)
	link := req.Song.Link()
	if req.Song == nil || strings.TrimSpace(req.Song.ID) == "" || link == "" || username == "" {
		return grid.Cell{}, grid.Validationf("missing song or username")
	}
	if _, ok := enrich.ExtractTrackID(link); !ok {
		return grid.Cell{}, grid.Validationf("song link %q is not a track link", link)
	}

	if n := utf8.RuneCountInString(username); n < s.minUsername || n > s.maxUsername {
		return grid.Cell{}, grid.Validationf("username must be between %d and %d characters", s.minUsername, s.maxUsername)
	}

	return grid.Cell{Coord: coord, Link: link, Username: username}, nil
}

// ListAll returns one view per coordinate of the extent, row-major.
// The grid is never served without a provider token, even when no cell
// needs enriching.
func (s *Service) ListAll(ctx context.Context) ([]grid.TileView, error) {
	if err := s.requireCredentials(ctx); err != nil {
		return nil, err
	}

	stored, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}

	cells := s.dense(stored)
	views, err := s.enricher.Enrich(ctx, cells)
	if err != nil {
		return nil, err
	}
	return views, nil
}

func (s *Service) requireCredentials(ctx context.Context) error {
	if s.credentials == nil {
		return nil
	}
	if _, err := s.credentials.Token(ctx); err != nil {
		if errors.Is(err, grid.ErrCredentialUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", grid.ErrCredentialUnavailable, err)
	}
	return nil
}

// dense places stored cells into a full row-major grid, synthesizing empty
// cells for missing coordinates.
func (s *Service) dense(stored []grid.Cell) []grid.Cell {
	cells := make([]grid.Cell, s.extent.Size())
	for i, c := range s.extent.Coords() {
		cells[i] = grid.Cell{Coord: c}
	}
	for _, c := range stored {
		if !s.extent.Contains(c.Coord) {
			s.log.Warn("dropping stored cell outside grid extent", zap.Stringer("coord", c.Coord))
			continue
		}
		cells[s.extent.Index(c.Coord)] = c.Normalized()
	}
	return cells
}

// Get returns the cell at coord. A missing row reads as an empty cell.
func (s *Service) Get(ctx context.Context, coord grid.Coord) (grid.Cell, error) {
	if !s.extent.Contains(coord) {
		return grid.Cell{}, grid.Validationf("tile %s is outside the %dx%d grid", coord, s.extent.Rows, s.extent.Cols)
	}
	cell, ok, err := s.store.Get(ctx, coord)
	if err != nil {
		return grid.Cell{}, err
	}
	if !ok {
		return grid.Cell{Coord: coord}, nil
	}
	return cell.Normalized(), nil
}

// Search runs a free-text track search.
func (s *Service) Search(ctx context.Context, query string) ([]spotify.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, grid.Validationf("query parameter is required")
	}
	if s.searcher == nil {
		return nil, fmt.Errorf("%w: search is not configured", grid.ErrCredentialUnavailable)
	}
	return s.searcher.Search(ctx, query, s.searchLimit)
}

// Cooldown returns how long identity must still wait before editing.
func (s *Service) Cooldown(ctx context.Context, identity string) (time.Duration, error) {
	return s.gate.RemainingTime(ctx, identity)
}
