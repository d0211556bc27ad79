package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/printlog-cli/internal/guard"
	"github.com/sells-group/printlog-cli/internal/logbook"
	"github.com/sells-group/printlog-cli/internal/matcher"
	"github.com/sells-group/printlog-cli/internal/metrics"
	"github.com/sells-group/printlog-cli/internal/model"
	"github.com/sells-group/printlog-cli/internal/monitoring"
	"github.com/sells-group/printlog-cli/internal/notifier"
	"github.com/sells-group/printlog-cli/internal/sheet"
)

var servePort int

// sweeper runs one notification sweep.
type sweeper interface {
	Sweep(ctx context.Context) (*model.SweepResult, error)
}

// deviceChecker returns the activity verdict for a device.
type deviceChecker interface {
	Check(ctx context.Context, device string) (*guard.Decision, error)
}

// healthCollector summarizes recent sweep history.
type healthCollector interface {
	Collect(ctx context.Context, lookbackHours int) (*monitoring.HealthSnapshot, error)
}

// routerDeps are the collaborators behind the HTTP routes. Nil fields
// disable the corresponding route's work and answer 503.
type routerDeps struct {
	Sweeper        sweeper
	Sheets         sheet.Store
	ReferenceSheet string
	Guard          deviceChecker
	Health         healthCollector
	LookbackHours  int
	Gatherer       prometheus.Gatherer
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled sweeps and the HTTP trigger server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initApp(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		n := env.Notifier(notifier.WithMetrics(metrics.New(reg)))

		g, err := initGuard(env.Sheets)
		if err != nil {
			return err
		}

		var (
			health     healthCollector
			background []func(context.Context)
		)
		if env.Store != nil {
			collector := monitoring.NewCollector(env.Store)
			health = collector
			if cfg.Monitoring.WebhookURL != "" {
				checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
				background = append(background, checker.Run)
			}
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: buildRouter(routerDeps{
				Sweeper:        n,
				Sheets:         env.Sheets,
				ReferenceSheet: cfg.Workbook.ReferenceSheet,
				Guard:          g,
				Health:         health,
				LookbackHours:  cfg.Monitoring.LookbackWindowHours,
				Gatherer:       reg,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		return serve(ctx, srv, n, cfg.Sweep.Interval(), background...)
	},
}

// serve runs the HTTP server, the sweep scheduler and any background loops
// until ctx is done or the server fails.
func serve(ctx context.Context, srv *http.Server, sw sweeper, interval time.Duration, background ...func(context.Context)) error {
	grp, gCtx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})

	grp.Go(func() error {
		<-gCtx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if interval > 0 {
		grp.Go(func() error {
			runScheduler(gCtx, sw, interval)
			return nil
		})
	} else {
		zap.L().Info("scheduled sweeps disabled")
	}

	for _, run := range background {
		grp.Go(func() error {
			run(gCtx)
			return nil
		})
	}

	return grp.Wait()
}

// runScheduler sweeps once immediately and then every interval until ctx is
// done. A tick that finds the lock held is logged and dropped.
func runScheduler(ctx context.Context, sw sweeper, interval time.Duration) {
	log := zap.L().With(zap.Duration("interval", interval))
	log.Info("scheduler: started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := sw.Sweep(ctx); err != nil && !errors.Is(err, notifier.ErrLockTimeout) {
			log.Error("scheduler: sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			log.Info("scheduler: stopped")
			return
		case <-ticker.C:
		}
	}
}

func buildRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/health/sweeps", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health == nil {
			writeError(w, http.StatusServiceUnavailable, "history not configured")
			return
		}
		hours := deps.LookbackHours
		if v := r.URL.Query().Get("hours"); v != "" {
			h, err := cast.ToIntE(v)
			if err != nil || h <= 0 {
				writeError(w, http.StatusBadRequest, "hours must be a positive integer")
				return
			}
			hours = h
		}
		if hours <= 0 {
			hours = 24
		}
		snap, err := deps.Health.Collect(r.Context(), hours)
		if err != nil {
			zap.L().Error("http: collect sweep health", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Post("/sweep", func(w http.ResponseWriter, r *http.Request) {
		if deps.Sweeper == nil {
			writeError(w, http.StatusServiceUnavailable, "sweeps not configured")
			return
		}
		res, err := deps.Sweeper.Sweep(r.Context())
		switch {
		case errors.Is(err, notifier.ErrLockTimeout):
			writeJSON(w, http.StatusConflict, res)
		case err != nil:
			zap.L().Error("http: sweep failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "sweep failed")
		default:
			writeJSON(w, http.StatusOK, res)
		}
	})

	r.Get("/match", func(w http.ResponseWriter, r *http.Request) {
		if deps.Sheets == nil {
			writeError(w, http.StatusServiceUnavailable, "workbook not configured")
			return
		}
		first, last := r.URL.Query().Get("first"), r.URL.Query().Get("last")

		refs, err := logbook.Reference(r.Context(), deps.Sheets, deps.ReferenceSheet)
		if err != nil {
			zap.L().Error("http: load reference", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "reference sheet unavailable")
			return
		}
		refFirst, refLast, refValues := matcher.Columns(refs)
		writeJSON(w, http.StatusOK, map[string]string{
			"first": first,
			"last":  last,
			"value": matcher.Match(first, last, refFirst, refLast, refValues),
		})
	})

	r.Get("/check", func(w http.ResponseWriter, r *http.Request) {
		if deps.Guard == nil {
			writeError(w, http.StatusServiceUnavailable, "guard not configured")
			return
		}
		device := r.URL.Query().Get("device")
		if device == "" {
			writeError(w, http.StatusBadRequest, "device is required")
			return
		}
		d, err := deps.Guard.Check(r.Context(), device)
		if err != nil {
			zap.L().Error("http: check device", zap.String("device", device), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "check failed")
			return
		}
		writeJSON(w, http.StatusOK, d)
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
