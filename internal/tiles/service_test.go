package tiles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/songgrid/internal/admission"
	"github.com/dyluth/songgrid/internal/cellstore"
	"github.com/dyluth/songgrid/internal/enrich"
	"github.com/dyluth/songgrid/internal/spotify"
	"github.com/dyluth/songgrid/pkg/grid"
)

var fixedNow = time.Date(2024, 3, 9, 12, 30, 45, 123456789, time.FixedZone("CET", 3600))

type fakeProvider struct {
	calls   atomic.Int32
	catalog map[string]spotify.Track
	err     error
}

func (f *fakeProvider) Tracks(ctx context.Context, ids []string) ([]spotify.Track, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	var out []spotify.Track
	for _, id := range ids {
		if t, ok := f.catalog[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeSearcher struct {
	query string
	limit int
}

func (f *fakeSearcher) Search(ctx context.Context, q string, limit int) ([]spotify.Track, error) {
	f.query, f.limit = q, limit
	return []spotify.Track{{ID: "s1", Name: q}}, nil
}

// failingStore rejects writes and reads
type failingStore struct {
	cellstore.Store
}

func (f *failingStore) Upsert(ctx context.Context, cell grid.Cell) (int64, error) {
	return 0, cellstore.Error.Wrap(fmt.Errorf("%w: connection refused", grid.ErrStoreUnavailable))
}

func (f *failingStore) All(ctx context.Context) ([]grid.Cell, error) {
	return nil, cellstore.Error.Wrap(fmt.Errorf("%w: connection refused", grid.ErrStoreUnavailable))
}

type testEnv struct {
	svc      *Service
	store    cellstore.Store
	gate     *admission.Gate
	mr       *miniredis.Miniredis
	provider *fakeProvider
	searcher *fakeSearcher
}

func setupTestService(t *testing.T, store cellstore.Store, cooldown time.Duration) *testEnv {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	gate, err := admission.NewGate(rdb, "", cooldown, nil)
	require.NoError(t, err)

	provider := &fakeProvider{catalog: map[string]spotify.Track{
		"T1": {
			ID:      "T1",
			Name:    "Song A",
			Artists: []spotify.Artist{{Name: "Artist A"}},
			Album:   spotify.Album{Name: "Album A", Images: []spotify.Image{{URL: "img-a-640"}, {URL: "img-a-64"}}},
		},
	}}
	pipeline, err := enrich.New(provider, enrich.Options{})
	require.NoError(t, err)

	if store == nil {
		store = cellstore.NewMemory()
	}
	searcher := &fakeSearcher{}
	svc, err := New(Deps{Store: store, Gate: gate, Enricher: pipeline, Searcher: searcher},
		Options{Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)

	return &testEnv{svc: svc, store: store, gate: gate, mr: mr, provider: provider, searcher: searcher}
}

func song(id string) *SongRef {
	return &SongRef{ID: id, ExternalURLs: map[string]string{"spotify": "https://open.spotify.com/track/" + id}}
}

func edit(row, col int, id, username, client string) EditRequest {
	return EditRequest{Row: row, Col: col, Song: song(id), Username: username, ClientIdentity: client}
}

func TestNew(t *testing.T) {
	env := setupTestService(t, nil, time.Minute)

	_, err := New(Deps{Gate: env.gate, Enricher: &fakeEnricher{}}, Options{})
	assert.Error(t, err)

	_, err = New(Deps{Store: env.store, Enricher: &fakeEnricher{}}, Options{})
	assert.Error(t, err)

	_, err = New(Deps{Store: env.store, Gate: env.gate}, Options{})
	assert.Error(t, err)

	_, err = New(Deps{Store: env.store, Gate: env.gate, Enricher: &fakeEnricher{}}, Options{MinUsername: 10, MaxUsername: 5})
	assert.Error(t, err)

	_, err = New(Deps{Store: env.store, Gate: env.gate, Enricher: &fakeEnricher{}}, Options{Extent: grid.Extent{Rows: 0, Cols: 3}})
	assert.Error(t, err)

	svc, err := New(Deps{Store: env.store, Gate: env.gate, Enricher: &fakeEnricher{}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, grid.DefaultExtent(), svc.Extent())
	assert.Equal(t, DefaultMinUsername, svc.minUsername)
	assert.Equal(t, DefaultMaxUsername, svc.maxUsername)
}

type fakeEnricher struct{}

func (fakeEnricher) Enrich(ctx context.Context, cells []grid.Cell) ([]grid.TileView, error) {
	views := make([]grid.TileView, len(cells))
	for i, c := range cells {
		views[i] = grid.NewTileView(c)
	}
	return views, nil
}

func TestSubmitEdit(t *testing.T) {
	ctx := context.Background()

	t.Run("writes the cell with a UTC millisecond timestamp", func(t *testing.T) {
		env := setupTestService(t, nil, 30*time.Minute)

		res, err := env.svc.SubmitEdit(ctx, edit(1, 1, "T1", "  alice  ", "10.0.0.1"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.RowsAffected)

		cell, err := env.svc.Get(ctx, grid.Coord{Row: 1, Col: 1})
		require.NoError(t, err)
		assert.Equal(t, "https://open.spotify.com/track/T1", cell.Link)
		assert.Equal(t, "alice", cell.Username)
		require.NotNil(t, cell.LastUpdated)
		assert.Equal(t, time.UTC, cell.LastUpdated.Location())
		assert.True(t, fixedNow.Truncate(time.Millisecond).Equal(*cell.LastUpdated))
		assert.Zero(t, cell.LastUpdated.Nanosecond()%int(time.Millisecond))
	})

	t.Run("validation failures never consume the cooldown", func(t *testing.T) {
		env := setupTestService(t, nil, 30*time.Minute)

		cases := map[string]EditRequest{
			"row zero":           edit(0, 1, "T1", "alice", "c"),
			"col beyond extent":  edit(1, 21, "T1", "alice", "c"),
			"row beyond extent":  edit(21, 1, "T1", "alice", "c"),
			"missing song":       {Row: 1, Col: 1, Username: "alice", ClientIdentity: "c"},
			"empty song id":      {Row: 1, Col: 1, Song: &SongRef{ExternalURLs: map[string]string{"spotify": "x/track/T1"}}, Username: "alice", ClientIdentity: "c"},
			"missing link":       {Row: 1, Col: 1, Song: &SongRef{ID: "T1"}, Username: "alice", ClientIdentity: "c"},
			"non-track link":     {Row: 1, Col: 1, Song: &SongRef{ID: "T1", ExternalURLs: map[string]string{"spotify": "https://open.spotify.com/album/T1"}}, Username: "alice", ClientIdentity: "c"},
			"blank username":     edit(1, 1, "T1", "   ", "c"),
			"username too short": edit(1, 1, "T1", "ab", "c"),
			"username too long":  edit(1, 1, "T1", strings.Repeat("x", 16), "c"),
		}
		for name, req := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := env.svc.SubmitEdit(ctx, req)
				require.Error(t, err)
				assert.True(t, errors.Is(err, grid.ErrValidation), "got %v", err)
			})
		}

		assert.False(t, env.mr.Exists(admission.CooldownKey("", "c")))
		cells, err := env.store.All(ctx)
		require.NoError(t, err)
		assert.Empty(t, cells)
	})

	t.Run("username length is rejected even while cooling down", func(t *testing.T) {
		env := setupTestService(t, nil, 30*time.Minute)
		_, err := env.svc.SubmitEdit(ctx, edit(1, 1, "T1", "alice", "c"))
		require.NoError(t, err)

		for _, name := range []string{"ab", strings.Repeat("y", 16)} {
			_, err := env.svc.SubmitEdit(ctx, edit(2, 2, "T1", name, "c"))
			assert.True(t, errors.Is(err, grid.ErrValidation))
			assert.False(t, errors.Is(err, grid.ErrAdmissionDenied))
		}
	})

	t.Run("username bounds are counted in runes", func(t *testing.T) {
		env := setupTestService(t, nil, 30*time.Minute)
		_, err := env.svc.SubmitEdit(ctx, edit(1, 1, "T1", "日本語", "c1"))
		assert.NoError(t, err)
		_, err = env.svc.SubmitEdit(ctx, edit(1, 2, "T1", strings.Repeat("é", 15), "c2"))
		assert.NoError(t, err)
	})

	t.Run("cooldown is per client not per cell", func(t *testing.T) {
		env := setupTestService(t, nil, 30*time.Minute)

		_, err := env.svc.SubmitEdit(ctx, edit(1, 1, "T1", "alice", "10.0.0.1"))
		require.NoError(t, err)

		_, err = env.svc.SubmitEdit(ctx, edit(5, 5, "T1", "alice", "10.0.0.1"))
		require.Error(t, err)
		var denied *grid.AdmissionDeniedError
		require.True(t, errors.As(err, &denied))
		assert.True(t, errors.Is(err, grid.ErrAdmissionDenied))
		assert.Equal(t, 30, denied.Minutes())
		assert.Equal(t, "You must wait approximately 30 more minutes.", err.Error())

		_, err = env.svc.SubmitEdit(ctx, edit(1, 1, "T1", "bob", "10.0.0.2"))
		assert.NoError(t, err)

		cell, err := env.svc.Get(ctx, grid.Coord{Row: 5, Col: 5})
		require.NoError(t, err)
		assert.True(t, cell.IsEmpty())
	})

	t.Run("admitted again after the window expires", func(t *testing.T) {
		env := setupTestService(t, nil, time.Minute)
		_, err := env.svc.SubmitEdit(ctx, edit(1, 1, "T1", "alice", "c"))
		require.NoError(t, err)

		env.mr.FastForward(61 * time.Second)
		_, err = env.svc.SubmitEdit(ctx, edit(1, 2, "T1", "alice", "c"))
		assert.NoError(t, err)
	})

	t.Run("storage failure keeps the cooldown armed", func(t *testing.T) {
		env := setupTestService(t, &failingStore{Store: cellstore.NewMemory()}, 30*time.Minute)

		_, err := env.svc.SubmitEdit(ctx, edit(1, 1, "T1", "alice", "c"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, grid.ErrStoreUnavailable))
		assert.True(t, env.mr.Exists(admission.CooldownKey("", "c")))

		_, err = env.svc.SubmitEdit(ctx, edit(1, 1, "T1", "alice", "c"))
		assert.True(t, errors.Is(err, grid.ErrAdmissionDenied))
	})

	t.Run("rate-limit store failure is not a decision", func(t *testing.T) {
		env := setupTestService(t, nil, 30*time.Minute)
		env.mr.Close()

		_, err := env.svc.SubmitEdit(ctx, edit(1, 1, "T1", "alice", "c"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, grid.ErrStoreUnavailable))
		assert.True(t, admission.Error.Has(err))
	})
}

func TestListAll(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store yields the full empty grid", func(t *testing.T) {
		env := setupTestService(t, nil, time.Minute)

		views, err := env.svc.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, views, 400)
		assert.Equal(t, grid.Coord{Row: 1, Col: 1}, views[0].Coord())
		assert.Equal(t, grid.Coord{Row: 1, Col: 2}, views[1].Coord())
		assert.Equal(t, grid.Coord{Row: 20, Col: 20}, views[399].Coord())
		for _, v := range views {
			assert.Nil(t, v.Link)
			assert.False(t, v.Resolved())
		}
		assert.Zero(t, env.provider.calls.Load())
	})

	t.Run("edit then list shows the enriched cell", func(t *testing.T) {
		env := setupTestService(t, nil, 30*time.Minute)
		_, err := env.svc.SubmitEdit(ctx, edit(1, 1, "T1", "alice", "10.0.0.1"))
		require.NoError(t, err)

		views, err := env.svc.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, views, 400)

		first := views[0]
		assert.Equal(t, grid.Coord{Row: 1, Col: 1}, first.Coord())
		require.True(t, first.Resolved())
		assert.Equal(t, "Song A", *first.SongName)
		assert.Equal(t, "Artist A", *first.ArtistName)
		assert.Equal(t, "Album A", *first.AlbumName)
		assert.Equal(t, "img-a-640", *first.CoverArtURL)
		assert.Equal(t, "alice", *first.Username)

		for _, v := range views[1:] {
			assert.Nil(t, v.Link)
			assert.Nil(t, v.SongName)
		}
	})

	t.Run("migrated store and sparse store read the same", func(t *testing.T) {
		env := setupTestService(t, nil, 30*time.Minute)
		require.NoError(t, env.store.(cellstore.Migrator).Migrate(ctx, grid.DefaultExtent()))

		views, err := env.svc.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, views, 400)
	})

	t.Run("stored cells outside the extent are dropped", func(t *testing.T) {
		env := setupTestService(t, nil, 30*time.Minute)
		_, err := env.store.Upsert(ctx, grid.Cell{Coord: grid.Coord{Row: 25, Col: 1}, Link: "x/track/T1", Username: "ghost"})
		require.NoError(t, err)

		views, err := env.svc.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, views, 400)
		for _, v := range views {
			assert.Nil(t, v.Username)
		}
	})

	t.Run("enrichment failure fails the read", func(t *testing.T) {
		env := setupTestService(t, nil, 30*time.Minute)
		_, err := env.svc.SubmitEdit(ctx, edit(1, 1, "T1", "alice", "c"))
		require.NoError(t, err)
		env.provider.err = errors.New("boom")

		views, err := env.svc.ListAll(ctx)
		require.Error(t, err)
		assert.Nil(t, views)
		assert.True(t, errors.Is(err, grid.ErrProvider))
	})

	t.Run("store failure fails the read", func(t *testing.T) {
		env := setupTestService(t, &failingStore{Store: cellstore.NewMemory()}, 30*time.Minute)
		_, err := env.svc.ListAll(ctx)
		assert.True(t, errors.Is(err, grid.ErrStoreUnavailable))
	})
}

func TestGet(t *testing.T) {
	env := setupTestService(t, nil, 30*time.Minute)
	ctx := context.Background()

	cell, err := env.svc.Get(ctx, grid.Coord{Row: 3, Col: 4})
	require.NoError(t, err)
	assert.Equal(t, grid.Cell{Coord: grid.Coord{Row: 3, Col: 4}}, cell)

	_, err = env.svc.Get(ctx, grid.Coord{Row: 0, Col: 4})
	assert.True(t, errors.Is(err, grid.ErrValidation))
}

func TestSearch(t *testing.T) {
	env := setupTestService(t, nil, 30*time.Minute)
	ctx := context.Background()

	_, err := env.svc.Search(ctx, "  ")
	assert.True(t, errors.Is(err, grid.ErrValidation))

	tracks, err := env.svc.Search(ctx, " daft punk ")
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "daft punk", env.searcher.query)
	assert.Equal(t, spotify.DefaultSearchLimit, env.searcher.limit)
}

func TestCooldown(t *testing.T) {
	env := setupTestService(t, nil, 30*time.Minute)
	ctx := context.Background()

	remaining, err := env.svc.Cooldown(ctx, "c")
	require.NoError(t, err)
	assert.Zero(t, remaining)

	_, err = env.svc.SubmitEdit(ctx, edit(1, 1, "T1", "alice", "c"))
	require.NoError(t, err)

	remaining, err = env.svc.Cooldown(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, remaining)
}

type recordingNotifier struct {
	cells []grid.Cell
	err   error
}

func (r *recordingNotifier) Publish(ctx context.Context, cell grid.Cell) error {
	r.cells = append(r.cells, cell)
	return r.err
}

func TestSubmitEdit_Notifies(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t, nil, 30*time.Minute)

	notifier := &recordingNotifier{}
	svc, err := New(Deps{Store: env.store, Gate: env.gate, Enricher: fakeEnricher{}, Notifier: notifier},
		Options{Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)

	_, err = svc.SubmitEdit(ctx, edit(4, 2, "T1", "alice", "a"))
	require.NoError(t, err)
	require.Len(t, notifier.cells, 1)
	assert.Equal(t, grid.Coord{Row: 4, Col: 2}, notifier.cells[0].Coord)
	assert.Equal(t, "alice", notifier.cells[0].Username)

	// denied edits are not announced
	_, err = svc.SubmitEdit(ctx, edit(4, 3, "T1", "alice", "a"))
	require.Error(t, err)
	assert.Len(t, notifier.cells, 1)

	// a failed announcement does not fail the edit
	notifier.err = errors.New("pubsub down")
	_, err = svc.SubmitEdit(ctx, edit(4, 3, "T1", "bob", "b"))
	assert.NoError(t, err)
	assert.Len(t, notifier.cells, 2)
}

type fakeCredentials struct {
	err   error
	calls int
}

func (f *fakeCredentials) Token(ctx context.Context) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "token", nil
}

func TestListAll_RequiresCredentials(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t, nil, 30*time.Minute)

	newService := func(store cellstore.Store, creds Credentials) *Service {
		svc, err := New(Deps{Store: store, Gate: env.gate, Enricher: fakeEnricher{}, Credentials: creds}, Options{})
		require.NoError(t, err)
		return svc
	}

	t.Run("empty grid without a token is refused", func(t *testing.T) {
		creds := &fakeCredentials{err: fmt.Errorf("%w: client id and secret are not configured", grid.ErrCredentialUnavailable)}
		views, err := newService(cellstore.NewMemory(), creds).ListAll(ctx)
		require.Error(t, err)
		assert.Nil(t, views)
		assert.True(t, errors.Is(err, grid.ErrCredentialUnavailable))
		assert.Equal(t, 1, creds.calls)
	})

	t.Run("token is checked before the store is read", func(t *testing.T) {
		creds := &fakeCredentials{err: errors.New("token endpoint unreachable")}
		_, err := newService(&failingStore{Store: cellstore.NewMemory()}, creds).ListAll(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, grid.ErrCredentialUnavailable))
		assert.False(t, errors.Is(err, grid.ErrStoreUnavailable))
	})

	t.Run("a token lets the read through", func(t *testing.T) {
		creds := &fakeCredentials{}
		views, err := newService(cellstore.NewMemory(), creds).ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, views, 400)
		assert.Equal(t, 1, creds.calls)
	})
}
