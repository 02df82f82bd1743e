package tiles

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Layout is how the input files were acquired.
type Layout int

const (
	RowByRow Layout = iota
	ColumnByColumn
	SnakeByRows
	SnakeByColumns
	UnknownPositions  // Unordered collection, every pair gets compared
	PositionsFromFile // Offsets come from a tile configuration file
)

var layoutNames = map[string]Layout{
	"row-by-row":          RowByRow,
	"column-by-column":    ColumnByColumn,
	"snake-by-rows":       SnakeByRows,
	"snake-by-columns":    SnakeByColumns,
	"unknown-positions":   UnknownPositions,
	"positions-from-file": PositionsFromFile,
}

func ParseLayout(s string) (Layout, error) {
	if l, exists := layoutNames[strings.ToLower(s)]; exists {
		return l, nil
	}
	return 0, errors.Wrapf(ErrConfiguration, "no layout named '%s'", s)
}

func (l Layout) String() string {
	for name, v := range layoutNames {
		if v == l {
			return name
		}
	}
	return "unknown"
}

// IsGrid is true for the layouts that place tiles on a regular grid.
func (l Layout) IsGrid() bool { return l <= SnakeByColumns }

// Order is where a grid starts and which way it goes first. Bit 0 means
// starting on the right hand side, bit 1 means starting at the bottom.
type Order int

const (
	RightDown Order = iota // Row layouts; for column layouts, "down-right"
	LeftDown               // "down-left"
	RightUp                // "up-right"
	LeftUp                 // "up-left"
)

var rowOrderNames = []string{"right-down", "left-down", "right-up", "left-up"}
var colOrderNames = []string{"down-right", "down-left", "up-right", "up-left"}

func ParseOrder(layout Layout, s string) (Order, error) {
	names := rowOrderNames
	if layout == ColumnByColumn || layout == SnakeByColumns {
		names = colOrderNames
	}
	for i, name := range names {
		if strings.EqualFold(name, s) {
			return Order(i), nil
		}
	}
	return 0, errors.Wrapf(ErrConfiguration, "no order named '%s' for layout %s (want one of %s)",
		s, layout, strings.Join(names, ", "))
}

func (o Order) startsRight() bool  { return o == LeftDown || o == LeftUp }
func (o Order) startsBottom() bool { return o == RightUp || o == LeftUp }

// A Grid describes a regular acquisition pattern.
type Grid struct {
	Layout   Layout
	Order    Order
	SizeX    int
	SizeY    int
	OverlapX float64 // Fraction of a tile's width shared with its neighbour
	OverlapY float64
}

func (g Grid) Validate() error {
	if !g.Layout.IsGrid() {
		return errors.Wrapf(ErrConfiguration, "layout %s is not a grid", g.Layout)
	}
	if g.SizeX < 1 || g.SizeY < 1 {
		return errors.Wrapf(ErrConfiguration, "grid size %dx%d", g.SizeX, g.SizeY)
	}
	if g.OverlapX < 0 || g.OverlapX >= 1 || g.OverlapY < 0 || g.OverlapY >= 1 {
		return errors.Wrapf(ErrConfiguration, "grid overlap (%.2f, %.2f) must be in [0,1)", g.OverlapX, g.OverlapY)
	}
	if g.Order < RightDown || g.Order > LeftUp {
		return errors.Wrapf(ErrConfiguration, "grid order %d", g.Order)
	}
	return nil
}

// Positions returns the (x,y) grid cell of each of the SizeX*SizeY
// files, in acquisition order.
func (g Grid) Positions() [][2]int {
	w := gridWalker{Grid: g}
	out := make([][2]int, g.SizeX*g.SizeY)
	for i := range out {
		out[i] = w.next(i)
	}
	return out
}

// Arrange places the tiles (in acquisition order, already loaded so
// their sizes are known) on the grid. Offsets step by the smallest tile
// extent less the overlap. The result is in row-major grid order.
func (g Grid) Arrange(tiles []*Tile) ([]*Tile, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if len(tiles) != g.SizeX*g.SizeY {
		return nil, errors.Wrapf(ErrConfiguration, "a %dx%d grid holds exactly %d tiles, have %d",
			g.SizeX, g.SizeY, g.SizeX*g.SizeY, len(tiles))
	}

	cells := make([][]*Tile, g.SizeY)
	for y := range cells {
		cells[y] = make([]*Tile, g.SizeX)
	}
	minW, minH := math.MaxInt, math.MaxInt
	for i, pos := range g.Positions() {
		t := tiles[i]
		cells[pos[1]][pos[0]] = t
		if t.Size[0] < minW {
			minW = t.Size[0]
		}
		if t.Size[1] < minH {
			minH = t.Size[1]
		}
	}

	stepX := int(float64(minW) * (1 - g.OverlapX))
	stepY := int(float64(minH) * (1 - g.OverlapY))

	out := []*Tile{}
	for y := 0; y < g.SizeY; y++ {
		for x := 0; x < g.SizeX; x++ {
			t := cells[y][x]
			offset := make([]float64, t.NumDims)
			offset[0] = float64(x * stepX)
			offset[1] = float64(y * stepY)
			t.SetOffset(offset)
			out = append(out, t)
		}
	}
	return out, nil
}

// gridWalker steps through grid cells in acquisition order. Snakes keep
// their current direction here.
type gridWalker struct {
	Grid
	pos            [2]int
	snakeX, snakeY int
}

func (w *gridWalker) next(i int) [2]int {
	if i == 0 {
		w.pos = [2]int{0, 0}
		if w.Order.startsRight() {
			w.pos[0] = w.SizeX - 1
		}
		if w.Order.startsBottom() {
			w.pos[1] = w.SizeY - 1
		}
		w.snakeX, w.snakeY = 1, 1
		if w.Order.startsRight() {
			w.snakeX = -1
		}
		if w.Order.startsBottom() {
			w.snakeY = -1
		}
		return w.pos
	}

	switch w.Layout {
	case RowByRow:
		if !w.Order.startsRight() {
			if w.pos[0] < w.SizeX-1 {
				w.pos[0]++
			} else {
				w.pos[0] = 0
				w.pos[1] += w.snakeY
			}
		} else {
			if w.pos[0] > 0 {
				w.pos[0]--
			} else {
				w.pos[0] = w.SizeX - 1
				w.pos[1] += w.snakeY
			}
		}

	case ColumnByColumn:
		if !w.Order.startsBottom() {
			if w.pos[1] < w.SizeY-1 {
				w.pos[1]++
			} else {
				w.pos[1] = 0
				w.pos[0] += w.snakeX
			}
		} else {
			if w.pos[1] > 0 {
				w.pos[1]--
			} else {
				w.pos[1] = w.SizeY - 1
				w.pos[0] += w.snakeX
			}
		}

	case SnakeByRows:
		if (w.snakeX > 0 && w.pos[0] < w.SizeX-1) || (w.snakeX < 0 && w.pos[0] > 0) {
			w.pos[0] += w.snakeX
		} else {
			w.pos[1] += w.snakeY
			w.snakeX *= -1
		}

	case SnakeByColumns:
		if (w.snakeY > 0 && w.pos[1] < w.SizeY-1) || (w.snakeY < 0 && w.pos[1] > 0) {
			w.pos[1] += w.snakeY
		} else {
			w.pos[0] += w.snakeX
			w.snakeY *= -1
		}
	}
	return w.pos
}
