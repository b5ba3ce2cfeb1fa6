package mapgraph

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/internal/logging"
	"github.com/signalsfoundry/dtn-contact-sim/model"
)

// Loader reads map files into a SimMap and memoises the last result. The
// cache is keyed by the ordered list of file paths; asking for a different
// list drops the cached map.
type Loader struct {
	mu     sync.Mutex
	log    logging.Logger
	files  []string
	cached *SimMap
	nrRead int
}

// NewLoader returns an empty loader.
func NewLoader(log logging.Logger) *Loader {
	if log == nil {
		log = logging.Noop()
	}
	return &Loader{log: log}
}

// GetSimMap returns the map built from files, layer i+1 coming from
// files[i]. The map must be non-empty, fully connected and inside world.
func (l *Loader) GetSimMap(ctx context.Context, files []string, world model.WorldSize) (*SimMap, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != nil && slices.Equal(l.files, files) {
		if err := checkBounds(l.cached, world); err != nil {
			return nil, err
		}
		l.log.Debug(ctx, "map cache hit", logging.Int("files", len(files)))
		return l.cached, nil
	}
	l.cached, l.files, l.nrRead = nil, nil, 0

	if len(files) > MaxType {
		return nil, fmt.Errorf("%w: %d map files, at most %d supported", core.ErrConfig, len(files), MaxType)
	}

	m := NewSimMap()
	for i, path := range files {
		if err := readMapFile(path, i+1, m); err != nil {
			return nil, err
		}
	}
	if err := CheckConnected(m); err != nil {
		return nil, err
	}
	if err := checkBounds(m, world); err != nil {
		return nil, err
	}

	l.cached = m
	l.files = slices.Clone(files)
	l.nrRead = len(files)
	l.log.Info(ctx, "map loaded",
		logging.Int("files", len(files)),
		logging.Int("nodes", m.Len()),
	)
	return m, nil
}

// NrofMapFilesRead returns how many files built the cached map.
func (l *Loader) NrofMapFilesRead() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nrRead
}

// Reset drops the cached map.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached, l.files, l.nrRead = nil, nil, 0
}

func readMapFile(path string, layer int, m *SimMap) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: map file %q: %v", core.ErrIO, path, err)
	}
	defer f.Close()

	if err := ReadWKT(f, layer, m); err != nil {
		return fmt.Errorf("map file %q: %w", path, err)
	}
	return nil
}

// CheckConnected runs a breadth-first search from the first node and
// fails unless every node is reached.
func CheckConnected(m *SimMap) error {
	nodes := m.Nodes()
	if len(nodes) == 0 {
		return fmt.Errorf("%w: no map nodes in the given map", core.ErrConfig)
	}

	first := nodes[0]
	visited := map[*MapNode]bool{first: true}
	queue := []*MapNode{first}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, next := range n.Neighbors() {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	if len(visited) == len(nodes) {
		return nil
	}
	var example *MapNode
	for _, n := range nodes {
		if !visited[n] {
			example = n
			break
		}
	}
	return fmt.Errorf("%w: map is not fully connected: only %d out of %d map nodes can be reached from %s, e.g. %s can't be reached",
		core.ErrConfig, len(visited), len(nodes), first, example)
}

func checkBounds(m *SimMap, world model.WorldSize) error {
	for _, n := range m.Nodes() {
		if !world.Contains(n.Location) {
			return fmt.Errorf("%w: map node %s is out of world bounds (x: 0...%d y: 0...%d)",
				core.ErrConfig, n.Location, world.W, world.H)
		}
	}
	return nil
}
