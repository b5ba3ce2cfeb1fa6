// Package kb is the in-memory host registry of a simulation run.
package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/model"
)

var (
	// ErrHostExists is returned when a host address or name is taken.
	ErrHostExists = errors.New("host already exists")
	// ErrHostNotFound is returned for unknown addresses.
	ErrHostNotFound = errors.New("host not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventHostAdded EventType = iota
	EventHostRemoved
	EventHostMoved
)

func (t EventType) String() string {
	switch t {
	case EventHostAdded:
		return "added"
	case EventHostRemoved:
		return "removed"
	case EventHostMoved:
		return "moved"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// HostSnapshot is a copy of the observable state of a host.
type HostSnapshot struct {
	Address  int         `json:"address"`
	Name     string      `json:"name"`
	Group    string      `json:"group,omitempty"`
	Location model.Coord `json:"location"`
	Altitude float64     `json:"altitude,omitempty"`
}

func snapshotOf(h *core.Host) HostSnapshot {
	return HostSnapshot{
		Address:  h.Address,
		Name:     h.Name,
		Group:    h.Group,
		Location: h.Location,
		Altitude: h.Altitude,
	}
}

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type EventType
	Host HostSnapshot
}

// KnowledgeBase is a thread-safe store of the hosts of a run. It
// implements core.HostSource.
type KnowledgeBase struct {
	mu sync.RWMutex

	hosts  map[int]*core.Host
	byName map[string]*core.Host
	seen   map[int]model.Coord

	subs   map[int]func(Event)
	nextID int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		hosts:  make(map[int]*core.Host),
		byName: make(map[string]*core.Host),
		seen:   make(map[int]model.Coord),
		subs:   make(map[int]func(Event)),
	}
}

// AddHost registers h. Addresses and names must be unique.
func (kb *KnowledgeBase) AddHost(h *core.Host) error {
	if h == nil {
		return fmt.Errorf("%w: nil host", core.ErrConfig)
	}
	kb.mu.Lock()
	if _, exists := kb.hosts[h.Address]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: address %d", ErrHostExists, h.Address)
	}
	if _, exists := kb.byName[h.Name]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: name %q", ErrHostExists, h.Name)
	}
	kb.hosts[h.Address] = h
	kb.byName[h.Name] = h
	kb.seen[h.Address] = h.Location
	ev := Event{Type: EventHostAdded, Host: snapshotOf(h)}
	subs := kb.subscribers()
	kb.mu.Unlock()

	notify(subs, ev)
	return nil
}

// RemoveHost drops the host at addr.
func (kb *KnowledgeBase) RemoveHost(addr int) error {
	kb.mu.Lock()
	h, ok := kb.hosts[addr]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: address %d", ErrHostNotFound, addr)
	}
	delete(kb.hosts, addr)
	delete(kb.byName, h.Name)
	delete(kb.seen, addr)
	ev := Event{Type: EventHostRemoved, Host: snapshotOf(h)}
	subs := kb.subscribers()
	kb.mu.Unlock()

	notify(subs, ev)
	return nil
}

// GetHost returns the host at addr, or nil if not found.
func (kb *KnowledgeBase) GetHost(addr int) *core.Host {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.hosts[addr]
}

// HostByName returns the named host, or nil if not found.
func (kb *KnowledgeBase) HostByName(name string) *core.Host {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.byName[name]
}

// Len returns the number of hosts.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.hosts)
}

// ListHosts returns all hosts ordered by address.
func (kb *KnowledgeBase) ListHosts() []*core.Host {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]*core.Host, 0, len(kb.hosts))
	for _, h := range kb.hosts {
		res = append(res, h)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Address < res[j].Address })
	return res
}

// Snapshots returns copies of all hosts ordered by address. The run loop
// moves hosts without the KB lock; call it from that goroutine.
func (kb *KnowledgeBase) Snapshots() []HostSnapshot {
	hosts := kb.ListHosts()
	out := make([]HostSnapshot, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, snapshotOf(h))
	}
	return out
}

// UpdateHostLocation moves the host at addr and notifies subscribers.
func (kb *KnowledgeBase) UpdateHostLocation(addr int, loc model.Coord) error {
	kb.mu.Lock()
	h, ok := kb.hosts[addr]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: address %d", ErrHostNotFound, addr)
	}
	h.Location = loc
	kb.seen[addr] = loc
	ev := Event{Type: EventHostMoved, Host: snapshotOf(h)}
	subs := kb.subscribers()
	kb.mu.Unlock()

	notify(subs, ev)
	return nil
}

// SyncLocations emits EventHostMoved for every host whose location changed
// since the previous sync, in address order, and returns how many moved.
// Call it from the goroutine that moves the hosts.
func (kb *KnowledgeBase) SyncLocations() int {
	kb.mu.Lock()
	var events []Event
	for addr, h := range kb.hosts {
		if last, ok := kb.seen[addr]; ok && last == h.Location {
			continue
		}
		kb.seen[addr] = h.Location
		events = append(events, Event{Type: EventHostMoved, Host: snapshotOf(h)})
	}
	subs := kb.subscribers()
	kb.mu.Unlock()

	sort.Slice(events, func(i, j int) bool { return events[i].Host.Address < events[j].Host.Address })
	for _, ev := range events {
		notify(subs, ev)
	}
	return len(events)
}

// Reset drops every host. Subscriptions survive.
func (kb *KnowledgeBase) Reset() {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.hosts = make(map[int]*core.Host)
	kb.byName = make(map[string]*core.Host)
	kb.seen = make(map[int]model.Coord)
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextID
	kb.nextID++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

// subscribers returns the callbacks in subscription order. Callers hold mu.
func (kb *KnowledgeBase) subscribers() []func(Event) {
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, kb.subs[id])
	}
	return out
}

// notify runs outside the lock so callbacks may call back into the KB.
func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
