package grid

import (
	"fmt"
	"time"
)

const (
	// DefaultRows is the number of rows in the canvas when none is configured
	DefaultRows = 20

	// DefaultCols is the number of columns in the canvas when none is configured
	DefaultCols = 20
)

// Coord addresses a single cell. Rows and columns are 1-indexed.
type Coord struct {
	Row int `json:"rowNum"`
	Col int `json:"colNum"`
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// Extent declares the size of the canvas.
type Extent struct {
	Rows int `yaml:"rows" json:"rows"`
	Cols int `yaml:"cols" json:"cols"`
}

// DefaultExtent returns the 20x20 canvas.
func DefaultExtent() Extent {
	return Extent{Rows: DefaultRows, Cols: DefaultCols}
}

// Validate checks that both dimensions are positive.
func (e Extent) Validate() error {
	if e.Rows < 1 || e.Cols < 1 {
		return fmt.Errorf("grid extent must be positive, got %dx%d", e.Rows, e.Cols)
	}
	return nil
}

// Contains reports whether c lies within the extent.
func (e Extent) Contains(c Coord) bool {
	return c.Row >= 1 && c.Row <= e.Rows && c.Col >= 1 && c.Col <= e.Cols
}

// Size returns the number of cells in the extent.
func (e Extent) Size() int {
	if e.Rows < 1 || e.Cols < 1 {
		return 0
	}
	return e.Rows * e.Cols
}

// Index returns the row-major position of c within the extent.
// The result is only meaningful when Contains(c) is true.
func (e Extent) Index(c Coord) int {
	return (c.Row-1)*e.Cols + (c.Col - 1)
}

// Coords enumerates every coordinate in row-major order.
func (e Extent) Coords() []Coord {
	coords := make([]Coord, 0, e.Size())
	for row := 1; row <= e.Rows; row++ {
		for col := 1; col <= e.Cols; col++ {
			coords = append(coords, Coord{Row: row, Col: col})
		}
	}
	return coords
}

// Cell is the persisted content of one grid position.
// A cell without a link is empty and carries no editor or timestamp.
type Cell struct {
	Coord
	Link        string     `json:"link,omitempty"`        // Spotify track URL
	Username    string     `json:"username,omitempty"`    // Display name of the last editor
	LastUpdated *time.Time `json:"lastUpdated,omitempty"` // Server-side time of the last edit
}

// IsEmpty reports whether the cell holds no link.
func (c Cell) IsEmpty() bool {
	return c.Link == ""
}

// Normalized returns a copy of the cell that honours the empty-cell invariant:
// when there is no link, editor and timestamp are cleared.
func (c Cell) Normalized() Cell {
	if c.IsEmpty() {
		return Cell{Coord: c.Coord}
	}
	if c.LastUpdated != nil {
		ts := c.LastUpdated.UTC()
		c.LastUpdated = &ts
	}
	return c
}

// TileView is a Cell joined with the track metadata resolved for its link.
// Every derived field is nil when the link does not resolve.
type TileView struct {
	Row         int        `json:"rowNum"`
	Col         int        `json:"colNum"`
	Link        *string    `json:"link"`
	Username    *string    `json:"username"`
	LastUpdated *time.Time `json:"lastUpdated"`
	SongName    *string    `json:"songName"`
	ArtistName  *string    `json:"artistName"`
	AlbumName   *string    `json:"albumName"`
	CoverArtURL *string    `json:"coverArtUrl"`
}

// NewTileView builds a view of c with no derived fields.
func NewTileView(c Cell) TileView {
	c = c.Normalized()
	return TileView{
		Row:         c.Row,
		Col:         c.Col,
		Link:        optional(c.Link),
		Username:    optional(c.Username),
		LastUpdated: c.LastUpdated,
	}
}

// Coord returns the coordinate of the view.
func (v TileView) Coord() Coord {
	return Coord{Row: v.Row, Col: v.Col}
}

// Resolved reports whether track metadata was joined onto the view.
func (v TileView) Resolved() bool {
	return v.SongName != nil
}

// optional returns nil for the empty string.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
