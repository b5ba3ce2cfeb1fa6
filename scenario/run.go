package scenario

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/internal/logging"
	"github.com/signalsfoundry/dtn-contact-sim/timectrl"
)

// Run outcomes reported to the run metrics.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Run advances the simulation by duration seconds of simulated time, one
// Scenario.updateInterval tick at a time. A non-positive duration runs
// until Scenario.endTime. Each tick moves the hosts, re-evaluates
// contacts, emits host moves to KB subscribers and publishes a Snapshot.
//
// A run starting at time zero evaluates the initial contacts first. Any
// tick error, including a host leaving the world, aborts the run.
func (sc *SimulationContext) Run(ctx context.Context, duration float64) (err error) {
	if !sc.built {
		return fmt.Errorf("%w: scenario %q is not built", core.ErrInvariantViolation, sc.name)
	}
	start := sc.Clock.Now()
	end := start + duration
	if duration <= 0 {
		end = sc.endTime
	}
	if !(end > start) {
		return fmt.Errorf("%w: nothing to run: clock at %g, end at %g", core.ErrConfig, start, end)
	}

	ctx, log := logging.WithRunLogger(ctx, sc.Log)
	ctx, span := sc.tracer.Start(ctx, "scenario.run", trace.WithAttributes(
		attribute.String("scenario", sc.name),
		attribute.String("run_id", logging.RunIDFromContext(ctx)),
		attribute.Float64("sim.start", start),
		attribute.Float64("sim.end", end),
	))
	defer func() {
		outcome := OutcomeCompleted
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			outcome = OutcomeCancelled
		case err != nil:
			outcome = OutcomeFailed
		}
		if err != nil && outcome == OutcomeFailed {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		span.End()
		sc.runMetrics.RunFinished(outcome)
		log.Info(ctx, "run finished",
			logging.String("outcome", outcome),
			logging.Float("sim_time", sc.Clock.Now()),
			logging.Int("active_contacts", len(sc.Scheduler.ActiveContacts())),
		)
	}()

	tc, err := timectrl.NewTimeController(sc.Clock, sc.tick, end)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfig, err)
	}
	if sc.realTime {
		tc.Mode = timectrl.RealTime
	}

	last := start
	tc.AddListener(func(now float64) error {
		dt := now - last
		last = now
		return sc.step(ctx, now, dt)
	})

	log.Info(ctx, "run started",
		logging.String("scenario", sc.name),
		logging.Float("start", start),
		logging.Float("end", end),
		logging.Float("tick", sc.tick),
		logging.Int("hosts", sc.Hosts.Len()),
	)
	if start == 0 {
		if err := sc.step(ctx, 0, 0); err != nil {
			return err
		}
	}
	return tc.Run(ctx)
}

// step runs one tick at the clock's current time.
func (sc *SimulationContext) step(ctx context.Context, now, dt float64) error {
	if err := sc.Scheduler.Tick(ctx, dt); err != nil {
		return fmt.Errorf("tick at %g: %w", now, err)
	}
	sc.Hosts.SyncLocations()
	sc.runMetrics.SetSimTime(now)
	sc.publish(now)
	return nil
}
