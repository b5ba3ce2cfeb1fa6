package core

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/signalsfoundry/dtn-contact-sim/model"
)

// DefaultCellSizeMult is the default ratio between the grid cell size and
// the largest transmit range of a technology.
const DefaultCellSizeMult = 5

// GridConfig parameterises every grid of a GridRegistry.
type GridConfig struct {
	World               model.WorldSize
	CellSizeMult        int
	DisableOptimization bool
}

// Validate checks the world size and cell size multiplier.
func (c GridConfig) Validate() error {
	if !c.World.Valid() {
		return fmt.Errorf("%w: world size %dx%d must be positive", ErrConfig, c.World.W, c.World.H)
	}
	if c.CellSizeMult < 1 {
		return fmt.Errorf("%w: cellSizeMult %d must be >= 1", ErrConfig, c.CellSizeMult)
	}
	return nil
}

// GridCell is a bucket of interfaces located inside one cell.
type GridCell struct {
	row, col   int
	interfaces []*NetworkInterface
}

// Interfaces returns the interfaces currently in the cell.
func (c *GridCell) Interfaces() []*NetworkInterface {
	return c.interfaces
}

// Position returns the (row, col) of the cell, halo offset included.
func (c *GridCell) Position() (row, col int) {
	return c.row, c.col
}

func (c *GridCell) add(ni *NetworkInterface) {
	c.interfaces = append(c.interfaces, ni)
}

func (c *GridCell) remove(ni *NetworkInterface) bool {
	for i, cur := range c.interfaces {
		if cur == ni {
			last := len(c.interfaces) - 1
			c.interfaces[i] = c.interfaces[last]
			c.interfaces[last] = nil
			c.interfaces = c.interfaces[:last]
			return true
		}
	}
	return false
}

// moveInterface puts ni into to before taking it out of c. On failure
// neither cell is changed.
func (c *GridCell) moveInterface(ni *NetworkInterface, to *GridCell) error {
	to.add(ni)
	if !c.remove(ni) {
		to.remove(ni)
		return fmt.Errorf("%w: interface %s not in cell (%d,%d) while moving to (%d,%d)",
			ErrInvariantViolation, ni, c.row, c.col, to.row, to.col)
	}
	return nil
}

// ConnectivityGrid buckets the interfaces of one technology into square
// cells of side cellSize. Cell indices carry a +1 offset so that the
// outermost ring of cells is an always-empty halo and the 3x3
// neighbourhood of any occupied cell stays in bounds.
//
// A disabled grid keeps its interfaces in a flat registry and answers
// NearInterfaces with every registered interface.
type ConnectivityGrid struct {
	technology string
	world      model.WorldSize
	cellSize   int
	rows, cols int
	disabled   bool

	cells      [][]*GridCell
	interfaces map[*NetworkInterface]*GridCell
	ordered    []*NetworkInterface // registered interfaces by ID
}

// NewConnectivityGrid builds a grid with cellSize = ceil(maxRange*mult).
// A non-positive maxRange, or disable, yields a disabled grid.
func NewConnectivityGrid(technology string, world model.WorldSize, maxRange float64, mult int, disable bool) (*ConnectivityGrid, error) {
	cfg := GridConfig{World: world, CellSizeMult: mult, DisableOptimization: disable}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(maxRange) || math.IsInf(maxRange, 0) {
		return nil, fmt.Errorf("%w: technology %q: invalid max range %v", ErrConfig, technology, maxRange)
	}

	g := &ConnectivityGrid{
		technology: technology,
		world:      world,
		interfaces: make(map[*NetworkInterface]*GridCell),
	}
	if disable || maxRange <= 0 {
		g.disabled = true
		return g, nil
	}

	g.cellSize = int(math.Ceil(maxRange * float64(mult)))
	g.rows = world.H/g.cellSize + 1
	g.cols = world.W/g.cellSize + 1

	g.cells = make([][]*GridCell, g.rows+2)
	for r := range g.cells {
		g.cells[r] = make([]*GridCell, g.cols+2)
		for c := range g.cells[r] {
			g.cells[r][c] = &GridCell{row: r, col: c}
		}
	}
	return g, nil
}

// Technology returns the technology tag served by the grid.
func (g *ConnectivityGrid) Technology() string { return g.technology }

// CellSize returns the side of a cell in world units; 0 when disabled.
func (g *ConnectivityGrid) CellSize() int { return g.cellSize }

// Dimensions returns the number of active rows and columns, halo excluded.
func (g *ConnectivityGrid) Dimensions() (rows, cols int) { return g.rows, g.cols }

// Disabled reports whether the grid runs without spatial bucketing.
func (g *ConnectivityGrid) Disabled() bool { return g.disabled }

// Len returns the number of registered interfaces.
func (g *ConnectivityGrid) Len() int { return len(g.interfaces) }

// cellFor maps a location to its cell.
func (g *ConnectivityGrid) cellFor(c model.Coord) (*GridCell, error) {
	if !g.world.Contains(c) {
		return nil, fmt.Errorf("%w: %s outside %dx%d", ErrOutOfWorld, c, g.world.W, g.world.H)
	}
	row := int(c.Y/float64(g.cellSize)) + 1
	col := int(c.X/float64(g.cellSize)) + 1
	return g.cells[row][col], nil
}

// CellOf returns the cell ni is registered in. It returns nil for unknown
// interfaces and for every interface of a disabled grid.
func (g *ConnectivityGrid) CellOf(ni *NetworkInterface) *GridCell {
	return g.interfaces[ni]
}

// AddInterface registers ni in the cell of its current location. Adding an
// already registered interface replaces its previous placement.
func (g *ConnectivityGrid) AddInterface(ni *NetworkInterface) error {
	if g.disabled {
		if !g.world.Contains(ni.Location()) {
			return fmt.Errorf("%w: %s at %s", ErrOutOfWorld, ni, ni.Location())
		}
		if _, ok := g.interfaces[ni]; !ok {
			g.insertOrdered(ni)
		}
		g.interfaces[ni] = nil
		return nil
	}

	cell, err := g.cellFor(ni.Location())
	if err != nil {
		return fmt.Errorf("add %s: %w", ni, err)
	}
	if old, ok := g.interfaces[ni]; ok {
		old.remove(ni)
	} else {
		g.insertOrdered(ni)
	}
	cell.add(ni)
	g.interfaces[ni] = cell
	return nil
}

func (g *ConnectivityGrid) insertOrdered(ni *NetworkInterface) {
	i := sort.Search(len(g.ordered), func(i int) bool { return g.ordered[i].ID > ni.ID })
	g.ordered = append(g.ordered, nil)
	copy(g.ordered[i+1:], g.ordered[i:])
	g.ordered[i] = ni
}

func (g *ConnectivityGrid) removeOrdered(ni *NetworkInterface) {
	for i, cur := range g.ordered {
		if cur == ni {
			copy(g.ordered[i:], g.ordered[i+1:])
			g.ordered[len(g.ordered)-1] = nil
			g.ordered = g.ordered[:len(g.ordered)-1]
			return
		}
	}
}

// RemoveInterface deregisters ni. Unknown interfaces are ignored.
func (g *ConnectivityGrid) RemoveInterface(ni *NetworkInterface) {
	cell, ok := g.interfaces[ni]
	if !ok {
		return
	}
	if cell != nil {
		cell.remove(ni)
	}
	delete(g.interfaces, ni)
	g.removeOrdered(ni)
}

// UpdateLocation moves ni to the cell of its current location if it
// changed cells. Unregistered interfaces are ignored.
func (g *ConnectivityGrid) UpdateLocation(ni *NetworkInterface) error {
	old, ok := g.interfaces[ni]
	if !ok {
		return nil
	}
	if g.disabled {
		if !g.world.Contains(ni.Location()) {
			return fmt.Errorf("%w: %s at %s", ErrOutOfWorld, ni, ni.Location())
		}
		return nil
	}

	cell, err := g.cellFor(ni.Location())
	if err != nil {
		return fmt.Errorf("update %s: %w", ni, err)
	}
	if cell == old {
		return nil
	}
	if err := old.moveInterface(ni, cell); err != nil {
		return err
	}
	g.interfaces[ni] = cell
	return nil
}

// NearInterfaces returns the interfaces of the 3x3 cell neighbourhood of
// ni's cell, ni included, ordered by ID. On a disabled grid it returns
// every registered interface in a slice shared with the grid, which
// callers must not modify.
func (g *ConnectivityGrid) NearInterfaces(ni *NetworkInterface) []*NetworkInterface {
	if g.disabled {
		if _, ok := g.interfaces[ni]; !ok {
			return nil
		}
		return g.ordered
	}
	cell, ok := g.interfaces[ni]
	if !ok {
		return nil
	}

	var out []*NetworkInterface
	for r := cell.row - 1; r <= cell.row+1; r++ {
		for c := cell.col - 1; c <= cell.col+1; c++ {
			out = append(out, g.cells[r][c].interfaces...)
		}
	}
	sortByID(out)
	return out
}

// AllInterfaces returns every registered interface ordered by ID.
func (g *ConnectivityGrid) AllInterfaces() []*NetworkInterface {
	return append([]*NetworkInterface(nil), g.ordered...)
}

func (g *ConnectivityGrid) String() string {
	if g.disabled {
		return fmt.Sprintf("ConnectivityGrid(%s, disabled, %d interfaces)", g.technology, len(g.interfaces))
	}
	return fmt.Sprintf("ConnectivityGrid(%s, %dx%d cells of %d, %d interfaces)",
		g.technology, g.rows, g.cols, g.cellSize, len(g.interfaces))
}

func sortByID(in []*NetworkInterface) {
	sort.Slice(in, func(i, j int) bool { return in[i].ID < in[j].ID })
}

// GridSummary is a read-only view of a grid for status endpoints.
type GridSummary struct {
	Technology string `json:"technology"`
	Disabled   bool   `json:"disabled"`
	CellSize   int    `json:"cell_size"`
	Rows       int    `json:"rows"`
	Cols       int    `json:"cols"`
	Interfaces int    `json:"interfaces"`
}

// GridRegistry owns one ConnectivityGrid per technology.
type GridRegistry struct {
	mu    sync.RWMutex
	cfg   GridConfig
	grids map[string]*ConnectivityGrid
}

// NewGridRegistry validates cfg and returns an empty registry.
func NewGridRegistry(cfg GridConfig) (*GridRegistry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &GridRegistry{
		cfg:   cfg,
		grids: make(map[string]*ConnectivityGrid),
	}, nil
}

// Config returns the registry configuration.
func (r *GridRegistry) Config() GridConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// GetOrCreate returns the grid of tech, creating it on first use with
// cellSize = ceil(maxRange * CellSizeMult). Later calls ignore maxRange.
func (r *GridRegistry) GetOrCreate(tech string, maxRange float64) (*ConnectivityGrid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.grids[tech]; ok {
		return g, nil
	}
	g, err := NewConnectivityGrid(tech, r.cfg.World, maxRange, r.cfg.CellSizeMult, r.cfg.DisableOptimization)
	if err != nil {
		return nil, err
	}
	r.grids[tech] = g
	return g, nil
}

// Get returns the grid of tech if it exists.
func (r *GridRegistry) Get(tech string) (*ConnectivityGrid, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grids[tech]
	return g, ok
}

// Technologies returns the registered technology tags, sorted.
func (r *GridRegistry) Technologies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.grids))
	for tech := range r.grids {
		out = append(out, tech)
	}
	sort.Strings(out)
	return out
}

// Summaries describes every grid, ordered by technology.
func (r *GridRegistry) Summaries() []GridSummary {
	var out []GridSummary
	for _, tech := range r.Technologies() {
		g, _ := r.Get(tech)
		rows, cols := g.Dimensions()
		out = append(out, GridSummary{
			Technology: tech,
			Disabled:   g.Disabled(),
			CellSize:   g.CellSize(),
			Rows:       rows,
			Cols:       cols,
			Interfaces: g.Len(),
		})
	}
	return out
}

// Reset drops every grid and adopts cfg for grids created afterwards.
func (r *GridRegistry) Reset(cfg GridConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	r.grids = make(map[string]*ConnectivityGrid)
	return nil
}
