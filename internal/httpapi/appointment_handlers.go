package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"medidesk.org/internal/auth"
	"medidesk.org/internal/clinic"
)

type bookingRequest struct {
	PatientID             string    `json:"patientId"`
	DoctorID              string    `json:"doctorId"`
	StartsAt              time.Time `json:"dateTime"`
	DurationMinutes       int       `json:"duration"`
	Type                  string    `json:"type"`
	Reason                string    `json:"reason"`
	Notes                 string    `json:"notes"`
	PreviousAppointmentID string    `json:"previousAppointmentId"`
}

type rescheduleRequest struct {
	StartsAt        *time.Time `json:"dateTime"`
	DurationMinutes *int       `json:"duration"`
	Status          *string    `json:"status"`
	Notes           *string    `json:"notes"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (a *API) handleAppointmentsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listAppointments(w, r)
	case http.MethodPost:
		a.bookAppointment(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAppointmentResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/appointments/")
	switch rest {
	case "available-slots":
		a.availableSlots(w, r)
		return
	case "upcoming-controls":
		a.upcomingControls(w, r)
		return
	case "recommended-control-dates":
		a.recommendedControlDates(w, r)
		return
	}
	if strings.Contains(rest, "/") || rest == "" {
		writeError(w, r, http.StatusNotFound, codeNotFound, "no such endpoint")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getAppointment(w, r, rest)
	case http.MethodPut:
		a.rescheduleAppointment(w, r, rest)
	case http.MethodDelete:
		a.cancelAppointment(w, r, rest)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// listAppointments narrows the filter to the caller's own bookings unless the
// policy grants a wider view.
func (a *API) listAppointments(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "authentication required")
		return
	}

	q := r.URL.Query()
	f := clinic.AppointmentFilter{
		Status:    strings.TrimSpace(q.Get("status")),
		Type:      strings.TrimSpace(q.Get("type")),
		PatientID: strings.TrimSpace(q.Get("patientId")),
		DoctorID:  strings.TrimSpace(q.Get("doctorId")),
	}
	from, err := parseDateParam(q.Get("startDate"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidDate, "startDate must be YYYY-MM-DD")
		return
	}
	to, err := parseDateParam(q.Get("endDate"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidDate, "endDate must be YYYY-MM-DD")
		return
	}
	f.From = from
	if to != nil {
		// endDate is inclusive; the filter bound is the end of that day.
		end := to.Add(24*time.Hour - time.Nanosecond)
		f.To = &end
	}

	// An explicit cross-patient filter is a denied request, never a
	// narrowing opportunity; only an unscoped listing falls back to the
	// caller's own bookings.
	if f.PatientID != "" && f.PatientID != p.ID {
		if _, ok := a.requireAction(w, r, auth.ActionAppointmentRead, f.PatientID); !ok {
			return
		}
	} else if wide := auth.Decide(auth.ActionAppointmentRead, p, ""); !wide.Allowed {
		f.PatientID = p.ID
	}

	items, err := a.appts.List(r.Context(), f)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) bookAppointment(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidFormat, err.Error())
		return
	}
	p, ok := a.requireAction(w, r, auth.ActionAppointmentWrite, req.PatientID)
	if !ok {
		return
	}

	appt, err := a.appts.Book(r.Context(), clinic.BookingRequest{
		PatientID:             req.PatientID,
		DoctorID:              req.DoctorID,
		StartsAt:              req.StartsAt,
		DurationMinutes:       req.DurationMinutes,
		Type:                  req.Type,
		Reason:                req.Reason,
		Notes:                 req.Notes,
		PreviousAppointmentID: req.PreviousAppointmentID,
		CreatedBy:             p.ID,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/appointments/"+appt.ID)
	writeJSON(w, http.StatusCreated, appt)
}

func (a *API) getAppointment(w http.ResponseWriter, r *http.Request, id string) {
	appt, err := a.appts.Find(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if _, ok := a.requireAction(w, r, auth.ActionAppointmentRead, appt.PatientID); !ok {
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (a *API) rescheduleAppointment(w http.ResponseWriter, r *http.Request, id string) {
	appt, err := a.appts.Find(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if _, ok := a.requireAction(w, r, auth.ActionAppointmentWrite, appt.PatientID); !ok {
		return
	}

	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidFormat, err.Error())
		return
	}
	updated, err := a.appts.Reschedule(r.Context(), id, clinic.AppointmentUpdate{
		StartsAt:        req.StartsAt,
		DurationMinutes: req.DurationMinutes,
		Status:          req.Status,
		Notes:           req.Notes,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) cancelAppointment(w http.ResponseWriter, r *http.Request, id string) {
	appt, err := a.appts.Find(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if _, ok := a.requireAction(w, r, auth.ActionAppointmentWrite, appt.PatientID); !ok {
		return
	}

	// The reason may arrive in the body or not at all.
	var req cancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, codeInvalidFormat, err.Error())
			return
		}
	}
	cancelled, err := a.appts.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

func (a *API) availableSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAction(w, r, auth.ActionStaffView, ""); !ok {
		return
	}

	q := r.URL.Query()
	doctorID := strings.TrimSpace(q.Get("doctorId"))
	if doctorID == "" {
		writeErrorDetails(w, r, http.StatusBadRequest, codeMissingField, "missing required fields",
			map[string]string{"doctorId": "required"})
		return
	}
	day, err := time.Parse("2006-01-02", q.Get("date"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidDate, "date must be YYYY-MM-DD")
		return
	}
	duration := 0
	if raw := strings.TrimSpace(q.Get("duration")); raw != "" {
		duration, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, codeInvalidFormat, "duration must be an integer")
			return
		}
	}

	slots, err := a.appts.AvailableSlots(r.Context(), doctorID, day, duration)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": slots})
}

func (a *API) upcomingControls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	// Collection-wide view, so no target subject: operators and doctors only.
	if _, ok := a.requireAction(w, r, auth.ActionAppointmentRead, ""); !ok {
		return
	}
	items, err := a.appts.UpcomingControls(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) recommendedControlDates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAction(w, r, auth.ActionStaffView, ""); !ok {
		return
	}

	q := r.URL.Query()
	typeID := strings.TrimSpace(q.Get("procedureTypeId"))
	if typeID == "" {
		writeErrorDetails(w, r, http.StatusBadRequest, codeMissingField, "missing required fields",
			map[string]string{"procedureTypeId": "required"})
		return
	}
	performedAt, err := time.Parse("2006-01-02", q.Get("performedAt"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidDate, "performedAt must be YYYY-MM-DD")
		return
	}

	recs, err := a.appts.RecommendedControlDates(r.Context(), typeID, performedAt)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": recs})
}

func parseDateParam(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
