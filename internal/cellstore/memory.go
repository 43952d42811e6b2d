package cellstore

import (
	"context"
	"sort"
	"sync"

	"github.com/dyluth/songgrid/pkg/grid"
)

// Memory keeps cells in a process-local map. Contents are lost on restart;
// use it for development and tests only.
type Memory struct {
	mu    sync.RWMutex
	cells map[grid.Coord]grid.Cell
}

// NewMemory returns an empty store. Upserts create rows on demand, so
// migration is optional.
func NewMemory() *Memory {
	return &Memory{cells: map[grid.Coord]grid.Cell{}}
}

func (m *Memory) Migrate(ctx context.Context, extent grid.Extent) error {
	if err := extent.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range extent.Coords() {
		if _, ok := m.cells[c]; !ok {
			m.cells[c] = grid.Cell{Coord: c}
		}
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, c grid.Coord) (grid.Cell, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cell, ok := m.cells[c]
	return copyCell(cell), ok, nil
}

func (m *Memory) All(ctx context.Context) ([]grid.Cell, error) {
	m.mu.RLock()
	cells := make([]grid.Cell, 0, len(m.cells))
	for _, cell := range m.cells {
		cells = append(cells, copyCell(cell))
	}
	m.mu.RUnlock()

	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].Col < cells[j].Col
	})
	return cells, nil
}

func (m *Memory) Upsert(ctx context.Context, cell grid.Cell) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[cell.Coord] = copyCell(cell)
	return 1, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// copyCell detaches the timestamp pointer so callers never share state with the store.
func copyCell(c grid.Cell) grid.Cell {
	if c.LastUpdated != nil {
		ts := *c.LastUpdated
		c.LastUpdated = &ts
	}
	return c
}
