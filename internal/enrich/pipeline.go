// Package enrich joins stored cells with track metadata resolved from the
// provider in bounded batches.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dyluth/songgrid/internal/spotify"
	"github.com/dyluth/songgrid/pkg/grid"
)

const defaultConcurrency = 4

var trackIDPattern = regexp.MustCompile(`/track/([a-zA-Z0-9]+)`)

// ExtractTrackID returns the track id embedded in a Spotify link such as
// https://open.spotify.com/track/<id>?si=...
func ExtractTrackID(link string) (string, bool) {
	m := trackIDPattern.FindStringSubmatch(link)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// Provider resolves a batch of track ids. *spotify.Client implements it.
type Provider interface {
	Tracks(ctx context.Context, ids []string) ([]spotify.Track, error)
}

// Options tunes a Pipeline.
type Options struct {
	BatchSize      int // Ids per provider call, 1..spotify.MaxBatchSize, default spotify.MaxBatchSize
	MaxConcurrency int // Batches in flight at once, default 4
	Logger         *zap.Logger
}

// Pipeline enriches cells. It holds no state between calls, so the output is
// a function of the input cells and the provider's answers.
type Pipeline struct {
	provider    Provider
	batchSize   int
	concurrency int
	log         *zap.Logger
}

// New creates a pipeline over provider.
func New(provider Provider, opts Options) (*Pipeline, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = spotify.MaxBatchSize
	}
	if batchSize < 1 || batchSize > spotify.MaxBatchSize {
		return nil, fmt.Errorf("batch size must be between 1 and %d, got %d", spotify.MaxBatchSize, batchSize)
	}
	concurrency := opts.MaxConcurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		provider:    provider,
		batchSize:   batchSize,
		concurrency: concurrency,
		log:         log,
	}, nil
}

// Enrich returns one view per input cell, in input order.
//
// Links that do not contain a track id produce views without derived fields
// and a warning. If any batch lookup fails the whole call fails with an error
// wrapping grid.ErrProvider (or grid.ErrCredentialUnavailable): a partially
// enriched grid would be indistinguishable from one full of unknown tracks.
func (p *Pipeline) Enrich(ctx context.Context, cells []grid.Cell) ([]grid.TileView, error) {
	views := make([]grid.TileView, len(cells))
	if len(cells) == 0 {
		return views, nil
	}

	ids := p.collectIDs(cells)
	tracks, err := p.resolve(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i, cell := range cells {
		views[i] = join(cell, tracks)
	}
	return views, nil
}

// collectIDs extracts the ordered, de-duplicated track ids of cells.
func (p *Pipeline) collectIDs(cells []grid.Cell) []string {
	seen := make(map[string]struct{}, len(cells))
	var ids []string
	for _, cell := range cells {
		if cell.IsEmpty() {
			continue
		}
		id, ok := ExtractTrackID(cell.Link)
		if !ok {
			p.log.Warn("could not extract track id from link",
				zap.Stringer("coord", cell.Coord), zap.String("link", cell.Link))
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// resolve looks ids up in chunks of batchSize and returns an id -> track table.
func (p *Pipeline) resolve(ctx context.Context, ids []string) (map[string]spotify.Track, error) {
	table := make(map[string]spotify.Track, len(ids))
	if len(ids) == 0 {
		return table, nil
	}

	batches := chunk(ids, p.batchSize)
	results := make([][]spotify.Track, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			tracks, err := p.provider.Tracks(gctx, batch)
			if err != nil {
				return classify(err)
			}
			results[i] = tracks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.log.Error("track lookup failed", zap.Int("ids", len(ids)), zap.Int("batches", len(batches)), zap.Error(err))
		return nil, err
	}

	for _, tracks := range results {
		for _, t := range tracks {
			if t.ID != "" {
				table[t.ID] = t
			}
		}
	}
	p.log.Debug("resolved tracks", zap.Int("requested", len(ids)), zap.Int("resolved", len(table)), zap.Int("batches", len(batches)))
	return table, nil
}

// join composes the view for cell. Unresolvable links leave derived fields nil.
func join(cell grid.Cell, tracks map[string]spotify.Track) grid.TileView {
	view := grid.NewTileView(cell)
	if cell.IsEmpty() {
		return view
	}
	id, ok := ExtractTrackID(cell.Link)
	if !ok {
		return view
	}
	track, ok := tracks[id]
	if !ok {
		return view
	}

	name := track.Name
	artists := track.ArtistNames()
	album := track.Album.Name
	view.SongName = &name
	view.ArtistName = &artists
	view.AlbumName = &album
	if url, ok := track.CoverArtURL(); ok {
		view.CoverArtURL = &url
	}
	return view
}

// chunk splits ids into consecutive slices of at most size elements.
func chunk(ids []string, size int) [][]string {
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}

// classify makes sure a lookup failure carries a provider sentinel.
func classify(err error) error {
	if errors.Is(err, grid.ErrProvider) || errors.Is(err, grid.ErrCredentialUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", grid.ErrProvider, err)
}
