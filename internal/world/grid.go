// Package world provides the bounded square grid agents move across.
// Cells use integer (x, y) coordinates with the origin at (0, 0).
// The grid does not wrap: cells past an edge simply do not exist.
package world

import "fmt"

// Cell is a position on the grid.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// String returns the cell as "(x,y)".
func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// NeighborDirections defines the eight Moore-neighborhood offsets.
var NeighborDirections = [8]Cell{
	{X: -1, Y: -1},
	{X: 0, Y: -1},
	{X: 1, Y: -1},
	{X: -1, Y: 0},
	{X: 1, Y: 0},
	{X: -1, Y: 1},
	{X: 0, Y: 1},
	{X: 1, Y: 1},
}

// Occupant is anything that can stand on a cell.
type Occupant interface {
	OccupantID() uint64
}

// Grid is a width × height cell space. A cell may hold any number of occupants.
type Grid struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	cells    map[Cell][]Occupant
	position map[uint64]Cell
}

// NewGrid creates an empty grid. Width and height must be at least 1.
func NewGrid(width, height int) *Grid {
	if width < 1 || height < 1 {
		panic(fmt.Sprintf("world: invalid grid size %dx%d", width, height))
	}
	return &Grid{
		Width:    width,
		Height:   height,
		cells:    make(map[Cell][]Occupant),
		position: make(map[uint64]Cell),
	}
}

// InBounds returns true if the cell lies inside the grid.
func (g *Grid) InBounds(c Cell) bool {
	return c.X >= 0 && c.X < g.Width && c.Y >= 0 && c.Y < g.Height
}

// Place puts an occupant on a cell. Placing an occupant that is already on
// the grid relocates it.
func (g *Grid) Place(o Occupant, c Cell) {
	g.mustBeInBounds("place", c)
	if _, ok := g.position[o.OccupantID()]; ok {
		g.remove(o)
	}
	g.cells[c] = append(g.cells[c], o)
	g.position[o.OccupantID()] = c
}

// Move relocates an occupant. Moving to a cell outside the grid is a
// programming error and panics; callers pick targets from Neighbors.
func (g *Grid) Move(o Occupant, c Cell) {
	g.mustBeInBounds("move", c)
	if _, ok := g.position[o.OccupantID()]; !ok {
		panic(fmt.Sprintf("world: move of unplaced occupant %d", o.OccupantID()))
	}
	g.remove(o)
	g.cells[c] = append(g.cells[c], o)
	g.position[o.OccupantID()] = c
}

// PositionOf returns the cell an occupant stands on.
func (g *Grid) PositionOf(o Occupant) (Cell, bool) {
	c, ok := g.position[o.OccupantID()]
	return c, ok
}

// Occupants returns the occupants on a cell in placement order.
func (g *Grid) Occupants(c Cell) []Occupant {
	list := g.cells[c]
	out := make([]Occupant, len(list))
	copy(out, list)
	return out
}

// Neighbors returns the in-bounds cells adjacent to c, excluding c itself.
// Edge cells have 5 neighbors, corners 3, and a 1×1 grid has none.
func (g *Grid) Neighbors(c Cell) []Cell {
	result := make([]Cell, 0, len(NeighborDirections))
	for _, dir := range NeighborDirections {
		n := Cell{X: c.X + dir.X, Y: c.Y + dir.Y}
		if g.InBounds(n) {
			result = append(result, n)
		}
	}
	return result
}

// String returns a summary of the grid.
func (g *Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d, occupants=%d)", g.Width, g.Height, len(g.position))
}

func (g *Grid) remove(o Occupant) {
	id := o.OccupantID()
	old := g.position[id]
	list := g.cells[old]
	for i, other := range list {
		if other.OccupantID() == id {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(g.cells, old)
	} else {
		g.cells[old] = list
	}
	delete(g.position, id)
}

func (g *Grid) mustBeInBounds(op string, c Cell) {
	if !g.InBounds(c) {
		panic(fmt.Sprintf("world: %s to out-of-bounds cell %s on %dx%d grid", op, c, g.Width, g.Height))
	}
}
