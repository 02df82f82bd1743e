package tiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridPositions(t *testing.T) {
	tests := []struct {
		name  string
		grid  Grid
		cells [][2]int
	}{
		{"row right-down", Grid{Layout: RowByRow, Order: RightDown, SizeX: 3, SizeY: 2},
			[][2]int{{0, 0}, {1, 0}, {2, 0}, {0, 1}, {1, 1}, {2, 1}}},
		{"row left-up", Grid{Layout: RowByRow, Order: LeftUp, SizeX: 2, SizeY: 2},
			[][2]int{{1, 1}, {0, 1}, {1, 0}, {0, 0}}},
		{"column down-left", Grid{Layout: ColumnByColumn, Order: LeftDown, SizeX: 2, SizeY: 2},
			[][2]int{{1, 0}, {1, 1}, {0, 0}, {0, 1}}},
		{"snake rows right-down", Grid{Layout: SnakeByRows, Order: RightDown, SizeX: 3, SizeY: 2},
			[][2]int{{0, 0}, {1, 0}, {2, 0}, {2, 1}, {1, 1}, {0, 1}}},
		{"snake rows left-up", Grid{Layout: SnakeByRows, Order: LeftUp, SizeX: 2, SizeY: 3},
			[][2]int{{1, 2}, {0, 2}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}},
		{"snake columns up-right", Grid{Layout: SnakeByColumns, Order: RightUp, SizeX: 2, SizeY: 3},
			[][2]int{{0, 2}, {0, 1}, {0, 0}, {1, 0}, {1, 1}, {1, 2}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.cells, tc.grid.Positions())
		})
	}
}

func TestGridWalkersAreIndependent(t *testing.T) {
	g := Grid{Layout: SnakeByRows, Order: RightDown, SizeX: 3, SizeY: 3}
	first := g.Positions()
	second := g.Positions()
	assert.Equal(t, first, second)
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder(SnakeByColumns, "up-left")
	require.NoError(t, err)
	assert.Equal(t, LeftUp, o)

	_, err = ParseOrder(RowByRow, "down-right")
	require.ErrorIs(t, err, ErrConfiguration)

	l, err := ParseLayout("Snake-By-Rows")
	require.NoError(t, err)
	assert.Equal(t, SnakeByRows, l)
}

func TestGridArrange(t *testing.T) {
	tiles := []*Tile{}
	for i := 0; i < 4; i++ {
		tiles = append(tiles, NewTile(i, "t", 100, 80))
	}
	tiles[3].SetSize(120, 90)

	g := Grid{Layout: SnakeByRows, Order: RightDown, SizeX: 2, SizeY: 2, OverlapX: 0.1, OverlapY: 0.25}
	out, err := g.Arrange(tiles)
	require.NoError(t, err)
	require.Len(t, out, 4)

	// Snake: file 2 lands at (1,1) and file 3 at (0,1)
	assert.Equal(t, []int{0, 1, 3, 2}, []int{out[0].Index, out[1].Index, out[2].Index, out[3].Index})
	assert.Equal(t, []float64{90, 0}, out[1].Offset)
	assert.Equal(t, []float64{0, 60}, out[2].Offset)
	assert.Equal(t, []float64{90, 60}, out[3].Model.Params())
}

func TestGridValidate(t *testing.T) {
	bad := []Grid{
		{Layout: RowByRow, SizeX: 0, SizeY: 2},
		{Layout: RowByRow, SizeX: 2, SizeY: 2, OverlapX: 1.0},
		{Layout: UnknownPositions, SizeX: 2, SizeY: 2},
	}
	for _, g := range bad {
		assert.ErrorIs(t, g.Validate(), ErrConfiguration, "%+v", g)
	}

	g := Grid{Layout: RowByRow, SizeX: 3, SizeY: 1}
	_, err := g.Arrange([]*Tile{NewTile(0, "a", 10, 10)})
	assert.ErrorIs(t, err, ErrConfiguration)

	extra := []*Tile{}
	for i := 0; i < 5; i++ {
		extra = append(extra, NewTile(i, "t", 10, 10))
	}
	g = Grid{Layout: RowByRow, SizeX: 2, SizeY: 2}
	out, err := g.Arrange(extra)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "exactly 4 tiles, have 5")
}
