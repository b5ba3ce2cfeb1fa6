// core/contact_scheduler.go
package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/dtn-contact-sim/internal/logging"
	"github.com/signalsfoundry/dtn-contact-sim/model"
	"github.com/signalsfoundry/dtn-contact-sim/timectrl"
)

const tracerName = "github.com/signalsfoundry/dtn-contact-sim/core"

// ContactListener receives contact events. Calls are synchronous and happen
// on the scheduler's goroutine, in a deterministic order.
type ContactListener interface {
	ContactUp(a, b *NetworkInterface)
	ContactDown(a, b *NetworkInterface)
}

// ContactListenerFuncs adapts plain functions to ContactListener. Nil
// fields are skipped.
type ContactListenerFuncs struct {
	Up   func(a, b *NetworkInterface)
	Down func(a, b *NetworkInterface)
}

func (f ContactListenerFuncs) ContactUp(a, b *NetworkInterface) {
	if f.Up != nil {
		f.Up(a, b)
	}
}

func (f ContactListenerFuncs) ContactDown(a, b *NetworkInterface) {
	if f.Down != nil {
		f.Down(a, b)
	}
}

// ContactMetrics receives scheduler measurements. The observability
// package provides the Prometheus implementation.
type ContactMetrics interface {
	ContactUp(technology string)
	ContactDown(technology string)
	SetActiveContacts(n int)
	SetGridInterfaces(technology string, n int)
	AddRangeChecks(technology string, n int)
	ObserveTick(d time.Duration)
}

// HostSource lists the hosts the scheduler drives, in a stable order.
type HostSource interface {
	ListHosts() []*Host
}

// Contact is an active connection between two interfaces. A always has the
// smaller ID.
type Contact struct {
	A, B  *NetworkInterface
	Since float64
}

type pairKey struct {
	a, b int
}

func keyOf(a, b *NetworkInterface) pairKey {
	if a.ID > b.ID {
		a, b = b, a
	}
	return pairKey{a: a.ID, b: b.ID}
}

// ContactScheduler drives one tick of the connectivity pipeline: move
// hosts, update grid cells, evaluate neighbouring pairs and emit contact
// events. It is not safe for concurrent use.
type ContactScheduler struct {
	hosts HostSource
	grids *GridRegistry
	clock timectrl.SimClock
	world model.WorldSize

	contacts  map[pairKey]*Contact
	listeners []ContactListener
	metrics   ContactMetrics
	tracer    trace.Tracer
	log       logging.Logger
}

// SchedulerOption customises a ContactScheduler.
type SchedulerOption func(*ContactScheduler)

// WithContactMetrics attaches a metrics recorder.
func WithContactMetrics(m ContactMetrics) SchedulerOption {
	return func(s *ContactScheduler) { s.metrics = m }
}

// WithTracer overrides the tracer used for per-tick spans.
func WithTracer(t trace.Tracer) SchedulerOption {
	return func(s *ContactScheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(l logging.Logger) SchedulerOption {
	return func(s *ContactScheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithContactListener registers l at construction time.
func WithContactListener(l ContactListener) SchedulerOption {
	return func(s *ContactScheduler) { s.AddListener(l) }
}

// NewContactScheduler wires a scheduler over hosts and grids. The world
// size is taken from the grid registry configuration.
func NewContactScheduler(hosts HostSource, grids *GridRegistry, clock timectrl.SimClock, opts ...SchedulerOption) *ContactScheduler {
	s := &ContactScheduler{
		hosts:    hosts,
		grids:    grids,
		clock:    clock,
		world:    grids.Config().World,
		contacts: make(map[pairKey]*Contact),
		tracer:   otel.Tracer(tracerName),
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddListener registers l for contact events.
func (s *ContactScheduler) AddListener(l ContactListener) {
	if l != nil {
		s.listeners = append(s.listeners, l)
	}
}

// Env returns the range environment of the current tick.
func (s *ContactScheduler) Env() RangeEnv {
	return RangeEnv{World: s.world, Clock: s.clock}
}

// AttachInterface registers ni with the grid of its technology, creating
// the grid with maxRange on first use.
func (s *ContactScheduler) AttachInterface(ni *NetworkInterface, maxRange float64) error {
	grid, err := s.grids.GetOrCreate(ni.Technology, maxRange)
	if err != nil {
		return fmt.Errorf("attach %s: %w", ni, err)
	}
	return grid.AddInterface(ni)
}

// DetachInterface tears down every contact of ni, emitting contact-down
// events, and removes it from its grid.
func (s *ContactScheduler) DetachInterface(ctx context.Context, ni *NetworkInterface) {
	for _, key := range s.sortedKeys() {
		c := s.contacts[key]
		if c.A == ni || c.B == ni {
			s.down(ctx, key, c)
		}
	}
	if grid, ok := s.grids.Get(ni.Technology); ok {
		grid.RemoveInterface(ni)
	}
	s.recordGauges()
}

// Tick advances every host by dt seconds and re-evaluates contacts at the
// clock's current time.
func (s *ContactScheduler) Tick(ctx context.Context, dt float64) error {
	now := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, "contact.tick",
		trace.WithAttributes(attribute.Float64("sim.time", now), attribute.Float64("sim.dt", dt)))
	defer span.End()

	start := time.Now()
	err := s.tick(ctx, now, dt)
	if s.metrics != nil {
		s.metrics.ObserveTick(time.Since(start))
	}
	span.SetAttributes(attribute.Int("contacts.active", len(s.contacts)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *ContactScheduler) tick(ctx context.Context, now, dt float64) error {
	hosts := s.hosts.ListHosts()

	for _, h := range hosts {
		if err := h.Move(now, dt); err != nil {
			return fmt.Errorf("move host %s: %w", h, err)
		}
	}

	for _, h := range hosts {
		for _, ni := range h.Interfaces {
			grid, ok := s.grids.Get(ni.Technology)
			if !ok {
				return fmt.Errorf("%w: no grid for technology %q of %s", ErrInvariantViolation, ni.Technology, ni)
			}
			if err := grid.UpdateLocation(ni); err != nil {
				return err
			}
		}
	}

	env := s.Env()
	seen := make(map[pairKey]struct{}, len(s.contacts))
	checks := make(map[string]int)
	for _, h := range hosts {
		for _, ni := range h.Interfaces {
			grid, _ := s.grids.Get(ni.Technology)
			for _, other := range grid.NearInterfaces(ni) {
				if other.ID <= ni.ID {
					continue
				}
				key := keyOf(ni, other)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				checks[ni.Technology]++
				s.evaluate(ctx, env, key, ni, other)
			}
		}
	}

	// pairs that left each other's neighbourhood are out of range
	for _, key := range s.sortedKeys() {
		if _, ok := seen[key]; !ok {
			s.down(ctx, key, s.contacts[key])
		}
	}

	if s.metrics != nil {
		for tech, n := range checks {
			s.metrics.AddRangeChecks(tech, n)
		}
	}
	s.recordGauges()
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("pairs.checked", len(seen)))
	return nil
}

func (s *ContactScheduler) evaluate(ctx context.Context, env RangeEnv, key pairKey, a, b *NetworkInterface) {
	active := s.contacts[key]
	if !a.CanConnect(b) {
		if active != nil {
			s.down(ctx, key, active)
		}
		return
	}

	inRange := a.IsWithinRange(env, b) || b.IsWithinRange(env, a)
	switch {
	case inRange && active == nil:
		s.up(ctx, key, a, b, env.Now())
	case !inRange && active != nil:
		s.down(ctx, key, active)
	}
}

func (s *ContactScheduler) up(ctx context.Context, key pairKey, a, b *NetworkInterface, now float64) {
	if a.ID > b.ID {
		a, b = b, a
	}
	s.contacts[key] = &Contact{A: a, B: b, Since: now}
	s.log.Debug(ctx, "contact up",
		logging.String("a", a.String()),
		logging.String("b", b.String()),
		logging.Any("time", now),
	)
	if s.metrics != nil {
		s.metrics.ContactUp(a.Technology)
	}
	for _, l := range s.listeners {
		l.ContactUp(a, b)
	}
}

func (s *ContactScheduler) down(ctx context.Context, key pairKey, c *Contact) {
	delete(s.contacts, key)
	s.log.Debug(ctx, "contact down",
		logging.String("a", c.A.String()),
		logging.String("b", c.B.String()),
		logging.Any("since", c.Since),
	)
	if s.metrics != nil {
		s.metrics.ContactDown(c.A.Technology)
	}
	for _, l := range s.listeners {
		l.ContactDown(c.A, c.B)
	}
}

func (s *ContactScheduler) recordGauges() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetActiveContacts(len(s.contacts))
	for _, tech := range s.grids.Technologies() {
		if g, ok := s.grids.Get(tech); ok {
			s.metrics.SetGridInterfaces(tech, g.Len())
		}
	}
}

func (s *ContactScheduler) sortedKeys() []pairKey {
	keys := make([]pairKey, 0, len(s.contacts))
	for k := range s.contacts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].a != keys[j].a {
			return keys[i].a < keys[j].a
		}
		return keys[i].b < keys[j].b
	})
	return keys
}

// ActiveContacts returns a snapshot of the active contacts ordered by
// interface IDs.
func (s *ContactScheduler) ActiveContacts() []Contact {
	keys := s.sortedKeys()
	out := make([]Contact, 0, len(keys))
	for _, k := range keys {
		out = append(out, *s.contacts[k])
	}
	return out
}

// IsConnected reports whether a and b currently share a contact.
func (s *ContactScheduler) IsConnected(a, b *NetworkInterface) bool {
	if a == nil || b == nil || a == b {
		return false
	}
	_, ok := s.contacts[keyOf(a, b)]
	return ok
}

// Reset forgets every active contact without emitting events.
func (s *ContactScheduler) Reset() {
	s.contacts = make(map[pairKey]*Contact)
	s.world = s.grids.Config().World
	s.recordGauges()
}
