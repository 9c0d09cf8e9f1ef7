// main is the entry point of the warden service. It wires the monitored
// server profiles to their supervisors, roster trackers and periodic tasks,
// starts the admin API, and coordinates graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wardenbot/warden/internal/api"
	"github.com/wardenbot/warden/internal/config"
	"github.com/wardenbot/warden/internal/events"
	"github.com/wardenbot/warden/internal/game"
	"github.com/wardenbot/warden/internal/geoip"
	"github.com/wardenbot/warden/internal/logger"
	"github.com/wardenbot/warden/internal/playtime"
	"github.com/wardenbot/warden/internal/rcon"
	"github.com/wardenbot/warden/internal/roster"
	"github.com/wardenbot/warden/internal/scheduler"
	"github.com/wardenbot/warden/internal/storage"
	"github.com/wardenbot/warden/internal/supervisor"
	"github.com/wardenbot/warden/internal/vars"
)

func main() {
	cfg := config.Parse()

	logger.Setup(cfg.Logger)
	log.Info().Str("version", vars.Version).Msg("Starting warden service...")

	profiles, err := cfg.Profiles()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid server profiles")
	}

	// GeoIP
	var geoProvider *geoip.Provider
	if cfg.GeoIP.Path != "" {
		if err := geoip.EnsureDB(cfg.GeoIP.Path, cfg.GeoIP.URL, cfg.GeoIP.Interval); err != nil {
			log.Error().Err(err).Msg("Failed to download GeoIP database")
		}

		geoProvider, err = geoip.Open(cfg.GeoIP.Path)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
			geoProvider = nil
		} else {
			defer func() {
				if err := geoProvider.Close(); err != nil {
					log.Error().Err(err).Msg("Error closing GeoIP provider")
				}
			}()
		}
	}

	// Session history database
	history, err := storage.New(cfg.Storage.HistoryPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Playtime mapping
	policy, _ := playtime.ParsePolicy(cfg.Storage.RecoveryPolicy)
	store, warn := playtime.Open(cfg.Storage.PlaytimePath, policy)
	if store == nil {
		log.Fatal().Err(warn).Msg("Failed to load playtime mapping")
	}
	if warn != nil {
		log.Error().Err(warn).Msg("Playtime mapping could not be read, accounting restarts empty")
	}

	storeCtx, stopStore := context.WithCancel(context.Background())
	storeDone := make(chan struct{})
	go func() {
		defer close(storeDone)
		store.Run(storeCtx, cfg.Storage.FlushInterval)
	}()

	// Event bus and consumers
	bus := events.NewBus(256)
	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		consumeEvents(bus, history)
	}()

	// Per-profile supervision, polling and maintenance
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	var (
		supWg    sync.WaitGroup
		sched    scheduler.Scheduler
		targets  []*api.Target
		trackers []*roster.Tracker
	)

	for _, p := range profiles {
		adapter, err := game.Lookup(p.Kind)
		if err != nil {
			log.Fatal().Err(err).Str("server", p.Name).Msg("Unsupported game kind")
		}

		addr := p.Addr()
		sup := supervisor.New(supervisor.Options{
			Dial: func(ctx context.Context) (supervisor.Conn, error) {
				return rcon.Dial(ctx, addr, cfg.Monitor.RequestTimeout)
			},
			Bus:              bus,
			Profile:          p.Name,
			Password:         p.Password,
			PingCommand:      adapter.PingCommand(),
			FailureThreshold: cfg.Monitor.FailureThreshold,
			BackoffBase:      cfg.Monitor.BackoffBase,
			BackoffCap:       cfg.Monitor.BackoffCap,
			BackoffJitter:    0.2,
		})

		supWg.Add(1)
		go func() {
			defer supWg.Done()
			sup.Run(runCtx)
		}()

		tracker := roster.New(roster.Options{
			Exec:    sup,
			Adapter: adapter,
			Bus:     bus,
			Sink:    store,
			Profile: p.Name,
		})
		trackers = append(trackers, tracker)

		sched.Add(scheduler.Task{
			Profile:  p.Name,
			Name:     "health",
			Interval: cfg.Monitor.HealthInterval,
			Run:      sup.HealthCheck,
		})
		sched.Add(scheduler.Task{
			Profile:   p.Name,
			Name:      "roster",
			Interval:  cfg.Monitor.PollInterval,
			Immediate: true,
			Run:       tracker.Poll,
		})
		sched.Add(maintenanceTask(p.Name, adapter, sup, bus, cfg.Monitor.SaveInterval))

		country := ""
		if geoProvider != nil {
			country = geoProvider.CountryForHost(p.Host)
		}

		targets = append(targets, &api.Target{
			Commander: sup,
			Roster:    tracker,
			Profile:   p,
			Country:   country,
		})

		log.Info().
			Str("server", p.Name).
			Str("kind", p.Kind).
			Str("address", addr).
			Str("country", country).
			Msg("Monitoring server")
	}

	sched.Start(runCtx)

	// Admin API
	srvHandler := api.New(cfg, targets, store, history)
	httpServer := &http.Server{
		Addr:         cfg.API.Address,
		Handler:      srvHandler.Run(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.API.Address).Msg("Admin API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Admin API failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	grace := cfg.Monitor.ShutdownGrace
	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), grace)
	defer cancelHTTP()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		log.Error().Err(err).Msg("Admin API forced to shutdown")
	}

	// Stop scheduling new ticks and tear down connections. In-flight
	// requests get until the grace period to finish; stragglers are
	// abandoned and reported, never awaited forever.
	stopRun()
	graceful := awaitWithin(grace, func() {
		sched.Wait()
		supWg.Wait()
	})
	if !graceful {
		log.Error().Dur("grace", grace).Msg("Background tasks still pending after grace period, abandoning")
	}

	// Fold open sessions into the store and flush one last time.
	for _, t := range trackers {
		t.CloseAll()
	}
	stopStore()
	<-storeDone

	if graceful {
		bus.Close()
		<-recorderDone
	}

	if err := history.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database")
	}

	log.Info().Msg("Warden exited")
}

// maintenanceTask builds the periodic save task for one profile. Failures
// are reported through the event stream and never stop the schedule.
func maintenanceTask(profile string, adapter game.Adapter, sup *supervisor.Supervisor, bus *events.Bus, interval time.Duration) scheduler.Task {
	command := adapter.SaveCommand()

	return scheduler.Task{
		Profile:  profile,
		Name:     "maintenance",
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := sup.Execute(ctx, command)

			outcome := "ok"
			if err != nil {
				outcome = err.Error()
			}
			bus.Publish(events.MaintenanceCompleted{
				When:    time.Now(),
				Profile: profile,
				Task:    command,
				Outcome: outcome,
				OK:      err == nil,
			})

			return err
		},
	}
}

// consumeEvents is the bundled notifier: every event goes to the log, and
// the durable ones (finished sessions, maintenance outcomes) go to the
// history ledger.
func consumeEvents(bus *events.Bus, history *storage.Repository) {
	for ev := range bus.Events() {
		switch e := ev.(type) {
		case events.PlayerJoined:
			log.Info().
				Str("server", e.Profile).
				Str("player", e.Identity).
				Msg("Player joined")

		case events.PlayerLeft:
			log.Info().
				Str("server", e.Profile).
				Str("player", e.Identity).
				Int64("session_seconds", e.SessionSeconds).
				Msg("Player left")

			err := history.RecordSession(storage.Session{
				Profile:  e.Profile,
				Identity: e.Identity,
				JoinedAt: e.When.Add(-time.Duration(e.SessionSeconds) * time.Second),
				LeftAt:   e.When,
				Seconds:  e.SessionSeconds,
			})
			if err != nil {
				log.Error().Err(err).Msg("Failed to record session")
			}

		case events.ConnectionStateChanged:
			log.Info().
				Str("server", e.Profile).
				Str("from", e.From).
				Str("to", e.To).
				Msg("Connection state changed")

		case events.MaintenanceCompleted:
			evt := log.Info()
			if !e.OK {
				evt = log.Warn()
			}
			evt.Str("server", e.Profile).
				Str("task", e.Task).
				Str("outcome", e.Outcome).
				Msg("Maintenance run finished")

			err := history.RecordMaintenance(storage.MaintenanceRun{
				Profile: e.Profile,
				Task:    e.Task,
				Outcome: e.Outcome,
				OK:      e.OK,
				RanAt:   e.When,
			})
			if err != nil {
				log.Error().Err(err).Msg("Failed to record maintenance run")
			}
		}
	}
}

// awaitWithin runs fn and reports whether it finished inside d.
func awaitWithin(d time.Duration, fn func()) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
