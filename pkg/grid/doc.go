// Package grid provides the shared types, validation rules and error taxonomy
// for the songgrid canvas.
//
// # Overview
//
// The canvas is a fixed-size grid of cells. Every cell exists from the moment
// the grid is created; only its content changes. A cell holds an optional link
// to a Spotify track plus the display name of the last editor and the time of
// the last edit.
//
// # Core Concepts
//
// Coord addresses a cell by 1-indexed row and column. Extent declares the size
// of the grid and enumerates every coordinate in row-major order.
//
// Cell is the persisted record. TileView is the read-side composition of a Cell
// with the track metadata resolved from the provider. Derived fields on a
// TileView are nil when the link cannot be resolved; that is not an error.
//
// # Errors
//
// Components report failures by wrapping one of the sentinel errors in this
// package (ErrValidation, ErrAdmissionDenied, ErrStoreUnavailable, ErrProvider,
// ErrCredentialUnavailable). Callers classify with errors.Is; only the HTTP
// layer turns them into status codes.
//
// # Usage Example
//
//	extent := grid.DefaultExtent()
//	for _, c := range extent.Coords() {
//		view := grid.NewTileView(grid.Cell{Coord: c})
//		_ = view
//	}
package grid
