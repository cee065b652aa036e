// Package httpapi is the REST surface of the clinic service. Every request
// runs the same pipeline: authenticate, authorize, validate, execute; failures
// at any stage terminate the request with the shared error envelope.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"medidesk.org/internal/audit"
	"medidesk.org/internal/auth"
	"medidesk.org/internal/clinic"
	"medidesk.org/internal/notify"
	"medidesk.org/internal/obs"
)

// ReadyProbe checks the backing store before the instance admits traffic.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries everything the HTTP layer needs wired in.
type Deps struct {
	Accounts      *auth.Service
	Tokens        *auth.Tokens
	Profiles      *clinic.Profiles
	Appointments  *clinic.Appointments
	Catalog       *clinic.Procedures
	Notifications *clinic.Notifications
	Stream        *notify.Stream
	Audit         *audit.Recorder
	Roles         *auth.RoleCache // nil unless strict role mode
	Ready         ReadyProbe
	Version       string
	MaxBodyBytes  int64
	RateBurst     int
	RatePerSec    int
}

// API is the HTTP layer.
type API struct {
	mux *http.ServeMux

	accounts *auth.Service
	tokens   *auth.Tokens
	profiles *clinic.Profiles
	appts    *clinic.Appointments
	catalog  *clinic.Procedures
	notifs   *clinic.Notifications
	stream   *notify.Stream
	audit    *audit.Recorder
	roles    *auth.RoleCache

	readyProbe ReadyProbe
	version    string
	maxBody    int64
	rateBurst  int
	ratePerSec int
}

func New(d Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		accounts:   d.Accounts,
		tokens:     d.Tokens,
		profiles:   d.Profiles,
		appts:      d.Appointments,
		catalog:    d.Catalog,
		notifs:     d.Notifications,
		stream:     d.Stream,
		audit:      d.Audit,
		roles:      d.Roles,
		readyProbe: d.Ready,
		version:    d.Version,
		maxBody:    d.MaxBodyBytes,
		rateBurst:  d.RateBurst,
		ratePerSec: d.RatePerSec,
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/api/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/api/auth/", a.handleAuth)
	a.mux.HandleFunc("/api/users", a.handleUsersCollection)
	a.mux.HandleFunc("/api/users/", a.handleUserResource)
	a.mux.HandleFunc("/api/appointments", a.handleAppointmentsCollection)
	a.mux.HandleFunc("/api/appointments/", a.handleAppointmentResource)
	a.mux.HandleFunc("/api/procedures/", a.handleProcedures)
	a.mux.HandleFunc("/api/notifications", a.handleNotificationsCollection)
	a.mux.HandleFunc("/api/notifications/", a.handleNotificationResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "no such endpoint")
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- service endpoints ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "medidesk-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":    "medidesk-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	}
	if a.stream != nil {
		info["streamSubscribers"] = a.stream.Subscribers()
	}
	writeJSON(w, http.StatusOK, info)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
}
