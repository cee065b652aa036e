package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"medidesk.org/internal/audit"
	"medidesk.org/internal/auth"
	"medidesk.org/internal/clinic"
	"medidesk.org/internal/config"
	"medidesk.org/internal/httpapi"
	"medidesk.org/internal/identity"
	"medidesk.org/internal/migrate"
	"medidesk.org/internal/notify"
	"medidesk.org/internal/obs"
	"medidesk.org/internal/store/pg"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("MEDIDESK_COMMIT"))

	cfg := config.MustLoad("")

	// Storage: Postgres when a DSN is configured, in-memory otherwise so a
	// bare checkout still runs.
	var (
		store        *pg.Store
		gateway      identity.Gateway
		profileStore clinic.ProfileStore
		apptStore    clinic.AppointmentStore
		procStore    clinic.ProcedureStore
		notifStore   clinic.NotificationStore
		auditStore   audit.Store
		ready        httpapi.ReadyProbe
	)
	if cfg.DB.DSN != "" {
		var err error
		store, err = pg.Open(cfg.DB.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()

		mgr := migrate.NewManager(store.DB(), "ops/migrations/sql", "ops/migrations/seeds")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := mgr.Up(ctx); err != nil {
			cancel()
			log.Fatalf("migrate: %v", err)
		}
		cancel()

		gateway = identity.NewPGGateway(store.DB())
		profileStore = store.Profiles()
		apptStore = store.Appointments()
		procStore = store.Procedures()
		notifStore = store.Notifications()
		auditStore = store.Audit()
		ready = httpapi.ReadyProbe{DB: store.DB()}
	} else {
		log.Println("no MEDIDESK_PG_DSN set, using in-memory stores")
		gateway = identity.NewMemoryGateway()
		profileStore = clinic.NewMemoryProfiles()
		apptStore = clinic.NewMemoryAppointments()
		procStore = clinic.NewMemoryProcedures()
		notifStore = clinic.NewMemoryNotifications()
		auditStore = audit.NewMemoryStore()
	}

	tokens, err := auth.NewTokens(
		cfg.Auth.AccessSecret,
		cfg.Auth.RefreshSecret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAccessTTL(cfg.Auth.AccessTTL()),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL()),
	)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	profiles := clinic.NewProfiles(profileStore)
	catalog := clinic.NewProcedures(procStore)
	appts := clinic.NewAppointments(apptStore, catalog, profiles)
	notifs := clinic.NewNotifications(notifStore)
	accounts := auth.NewService(gateway, profiles, tokens)
	recorder := audit.NewRecorder(auditStore)
	stream := notify.NewStream()

	var roles *auth.RoleCache
	if cfg.Auth.StrictRoles {
		roles = auth.NewRoleCache(profiles, cfg.Auth.RoleCacheTTL)
	}

	reminder := notify.NewReminder(appts, notifs, stream, cfg.Reminders.LeadTime)
	if err := reminder.Start(cfg.Reminders.Spec); err != nil {
		log.Fatalf("reminders: %v", err)
	}
	defer reminder.Stop()

	api := httpapi.New(httpapi.Deps{
		Accounts:      accounts,
		Tokens:        tokens,
		Profiles:      profiles,
		Appointments:  appts,
		Catalog:       catalog,
		Notifications: notifs,
		Stream:        stream,
		Audit:         recorder,
		Roles:         roles,
		Ready:         ready,
		Version:       version,
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
		RateBurst:     cfg.Rate.Burst,
		RatePerSec:    cfg.Rate.PerSec,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: the SSE stream holds its response open.
	}

	log.Printf("Starting medidesk-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
