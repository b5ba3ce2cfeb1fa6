package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/signalsfoundry/dtn-contact-sim/core"
	"github.com/signalsfoundry/dtn-contact-sim/internal/logging"
	"github.com/signalsfoundry/dtn-contact-sim/internal/observability"
	"github.com/signalsfoundry/dtn-contact-sim/internal/settings"
	"github.com/signalsfoundry/dtn-contact-sim/scenario"
)

// healthService is the gRPC health service name that tracks the run.
const healthService = "dtn.contactsim.Run"

// Config holds the command line of contactsim.
type Config struct {
	ConfigPath     string
	Duration       float64
	Tick           float64
	RealTime       bool
	Serve          bool
	MetricsAddress string
	GRPCAddress    string
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.ConfigPath, "config", "", "YAML settings file describing the scenario (required)")
	flag.Float64Var(&cfg.Duration, "duration", 0, "simulated seconds to run; 0 runs until Scenario.endTime")
	flag.Float64Var(&cfg.Tick, "tick", 0, "simulated seconds per tick; 0 uses Scenario.updateInterval")
	flag.BoolVar(&cfg.RealTime, "realtime", false, "pace the run against the wall clock")
	flag.BoolVar(&cfg.Serve, "serve", false, "keep serving metrics and health after the run until interrupted")
	flag.StringVar(&cfg.MetricsAddress, "metrics-addr", ":9090", "HTTP address for /metrics, /healthz, /grids and /hosts; empty disables")
	flag.StringVar(&cfg.GRPCAddress, "grpc-addr", ":50051", "TCP address of the gRPC health server; empty disables")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	if cfg.ConfigPath == "" {
		fmt.Fprintln(os.Stderr, "contactsim: -config is required")
		flag.Usage()
		os.Exit(2)
	}

	tracing := observability.TracingConfigFromEnv()
	if tracing.Attributes == nil {
		tracing.Attributes = make(map[string]string)
	}
	tracing.Attributes["dtn.settings"] = cfg.ConfigPath
	shutdownTracing, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	var lis net.Listener
	if cfg.GRPCAddress != "" {
		lis, err = net.Listen("tcp", cfg.GRPCAddress)
		if err != nil {
			log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddress), logging.Err(err))
			os.Exit(1)
		}
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, log, lis); err != nil {
		log.Error(ctx, "contactsim failed", logging.Err(err))
		stop()
		observability.ShutdownWithTimeout(ctx, shutdownTracing, log)
		os.Exit(1)
	}
}

// run builds the scenario described by cfg and runs it, serving health
// on lis and metrics on cfg.MetricsAddress. An interrupted run is not an
// error.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	contactMetrics, err := observability.NewContactCollector(reg)
	if err != nil {
		return fmt.Errorf("contact metrics: %w", err)
	}
	runMetrics, err := observability.NewRunCollector(reg)
	if err != nil {
		return fmt.Errorf("run metrics: %w", err)
	}

	s, err := settings.Load(cfg.ConfigPath)
	if err != nil {
		return err
	}
	opts := []scenario.Option{
		scenario.WithContactMetrics(contactMetrics),
		scenario.WithRunMetrics(runMetrics),
		scenario.WithUpdateInterval(cfg.Tick),
	}
	if cfg.RealTime {
		opts = append(opts, scenario.WithRealTime())
	}
	sc, err := scenario.NewSimulationContext(s, log, opts...)
	if err != nil {
		return err
	}
	events := &contactLog{ctx: ctx, log: log, sc: sc}
	sc.Scheduler.AddListener(events)

	if err := sc.Build(ctx); err != nil {
		return err
	}

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
	var server *grpc.Server
	if lis != nil {
		server = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
		healthpb.RegisterHealthServer(server, healthSrv)
		reflection.Register(server)
		log.Info(ctx, "starting gRPC health server", logging.String("addr", lis.Addr().String()))
		go func() {
			if err := server.Serve(lis); err != nil {
				log.Error(ctx, "gRPC server exited", logging.Err(err))
			}
		}()
	}
	httpSrv := serveHTTP(ctx, cfg.MetricsAddress, newRouter(sc, contactMetrics.Handler()), log)

	healthSrv.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
	runErr := sc.Run(ctx, cfg.Duration)
	healthSrv.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)

	snap := sc.Snapshot()
	log.Info(ctx, "simulation finished",
		logging.String("scenario", snap.Name),
		logging.Float("sim_time", snap.Time),
		logging.Int("contacts_up", events.up),
		logging.Int("contacts_down", events.down),
		logging.Int("contacts_active", snap.Contacts),
	)

	if runErr == nil && cfg.Serve {
		log.Info(ctx, "run complete; serving until interrupted")
		<-ctx.Done()
	}

	log.Info(context.Background(), "shutting down contactsim")
	healthSrv.Shutdown()
	if server != nil {
		server.GracefulStop()
	}
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// contactLog logs contact transitions and counts them.
type contactLog struct {
	ctx      context.Context
	log      logging.Logger
	sc       *scenario.SimulationContext
	up, down int
}

func (c *contactLog) ContactUp(a, b *core.NetworkInterface) {
	c.up++
	c.log.Info(c.ctx, "contact up", c.fields(a, b)...)
}

func (c *contactLog) ContactDown(a, b *core.NetworkInterface) {
	c.down++
	c.log.Info(c.ctx, "contact down", c.fields(a, b)...)
}

func (c *contactLog) fields(a, b *core.NetworkInterface) []logging.Field {
	return []logging.Field{
		logging.Float("time", c.sc.Clock.Now()),
		logging.String("a", a.String()),
		logging.String("b", b.String()),
		logging.String("technology", a.Technology),
	}
}

func newRouter(sc *scenario.SimulationContext, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"status": "ok", "time": sc.Snapshot().Time})
	}).Methods(http.MethodGet)
	r.HandleFunc("/grids", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, sc.Snapshot().Grids)
	}).Methods(http.MethodGet)
	r.HandleFunc("/hosts", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, sc.Snapshot().Hosts)
	}).Methods(http.MethodGet)
	r.HandleFunc("/hosts/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := mux.Vars(req)["name"]
		for _, h := range sc.Snapshot().Hosts {
			if h.Name == name {
				writeJSON(w, h)
				return
			}
		}
		http.Error(w, fmt.Sprintf("host %q not found", name), http.StatusNotFound)
	}).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func serveHTTP(ctx context.Context, addr string, h http.Handler, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(ctx, "metrics server exited", logging.Err(err))
		}
	}()
	log.Info(ctx, "serving metrics and state", logging.String("addr", addr))
	return srv
}
