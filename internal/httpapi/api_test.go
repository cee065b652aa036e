package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"medidesk.org/internal/audit"
	"medidesk.org/internal/auth"
	"medidesk.org/internal/clinic"
	"medidesk.org/internal/identity"
	"medidesk.org/internal/ids"
	"medidesk.org/internal/notify"
)

type testAPI struct {
	baseURL string
	client  *http.Client
	t       *testing.T

	tokens       *auth.Tokens
	profileStore *clinic.MemoryProfiles
	apptStore    *clinic.MemoryAppointments
	notifs       *clinic.Notifications
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	tokens, err := auth.NewTokens("test-access-secret", "test-refresh-secret")
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}

	profileStore := clinic.NewMemoryProfiles()
	apptStore := clinic.NewMemoryAppointments()
	procStore := clinic.NewMemoryProcedures()
	notifStore := clinic.NewMemoryNotifications()

	profiles := clinic.NewProfiles(profileStore)
	catalog := clinic.NewProcedures(procStore)
	appts := clinic.NewAppointments(apptStore, catalog, profiles)
	notifs := clinic.NewNotifications(notifStore)
	accounts := auth.NewService(identity.NewMemoryGateway(), profiles, tokens)

	api := New(Deps{
		Accounts:      accounts,
		Tokens:        tokens,
		Profiles:      profiles,
		Appointments:  appts,
		Catalog:       catalog,
		Notifications: notifs,
		Stream:        notify.NewStream(),
		Audit:         audit.NewRecorder(audit.NewMemoryStore()),
		Version:       "test",
		RateBurst:     1000,
		RatePerSec:    1000,
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &testAPI{
		baseURL:      srv.URL,
		client:       srv.Client(),
		t:            t,
		tokens:       tokens,
		profileStore: profileStore,
		apptStore:    apptStore,
		notifs:       notifs,
	}
}

func (c *testAPI) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *testAPI) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *testAPI) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

// register signs up through the API and returns the subject id and auth header.
func (c *testAPI) register(email string, role string) (string, map[string]string) {
	c.t.Helper()
	resp := c.post("/api/auth/register", map[string]any{
		"email":       email,
		"password":    "secret123",
		"fullName":    "Test User",
		"phoneNumber": "+10000000000",
		"role":        role,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register status: %d", resp.StatusCode)
	}
	payload := decode[authResponse](c.t, resp)
	if payload.Tokens == nil || payload.Tokens.AccessToken == "" {
		c.t.Fatalf("no tokens issued")
	}
	return payload.User.ID, map[string]string{"Authorization": "Bearer " + payload.Tokens.AccessToken}
}

// seed creates a profile directly in the store and signs a token for it; used
// for staff roles that self-registration refuses.
func (c *testAPI) seed(role clinic.Role) (string, map[string]string) {
	c.t.Helper()
	id := ids.New()
	err := c.profileStore.Create(context.Background(), &clinic.Profile{
		ID:          id,
		Email:       id + "@example.com",
		Role:        role,
		FullName:    "Seeded " + string(role),
		PhoneNumber: "+10000000001",
	})
	if err != nil {
		c.t.Fatalf("seed profile: %v", err)
	}
	pair, err := c.tokens.Issue(id, role)
	if err != nil {
		c.t.Fatalf("issue token: %v", err)
	}
	return id, map[string]string{"Authorization": "Bearer " + pair.AccessToken}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func wantStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
}

func wantErrorCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("status = %d, want %d", resp.StatusCode, status)
	}
	e := decode[apiError](t, resp)
	if e.Code != code {
		t.Fatalf("code = %q, want %q", e.Code, code)
	}
	if e.Timestamp == "" {
		t.Fatalf("envelope missing timestamp")
	}
	if e.RequestID == "" {
		t.Fatalf("envelope missing request id")
	}
}

func TestRegisterLoginProfileFlow(t *testing.T) {
	api := newTestAPI(t)

	uid, header := api.register("a@x.com", "visitor")

	// Own profile reads back with the registered role.
	resp := api.get("/api/users/"+uid, nil, header)
	wantStatus(t, resp, http.StatusOK)
	profile := decode[clinic.Profile](t, resp)
	if profile.Role != clinic.RoleVisitor {
		t.Fatalf("role = %s, want visitor", profile.Role)
	}

	// Login with the same credentials succeeds.
	resp = api.post("/api/auth/login", map[string]any{
		"email":    "a@x.com",
		"password": "secret123",
	}, nil)
	wantStatus(t, resp, http.StatusOK)
	login := decode[authResponse](t, resp)
	if login.User.ID != uid {
		t.Fatalf("login subject = %s, want %s", login.User.ID, uid)
	}

	// A second registration with the same email conflicts.
	resp = api.post("/api/auth/register", map[string]any{
		"email":       "a@x.com",
		"password":    "different1",
		"fullName":    "Other",
		"phoneNumber": "+10000000002",
		"role":        "patient",
	}, nil)
	wantErrorCode(t, resp, http.StatusConflict, codeEmailExists)

	// A stranger with the patient role cannot read the profile.
	_, otherHeader := api.register("b@x.com", "patient")
	resp = api.get("/api/users/"+uid, nil, otherHeader)
	wantErrorCode(t, resp, http.StatusForbidden, codeInsufficientPerms)
}

func TestAuthenticationFailures(t *testing.T) {
	api := newTestAPI(t)
	uid, _ := api.register("c@x.com", "patient")

	resp := api.get("/api/users/"+uid, nil, nil)
	wantErrorCode(t, resp, http.StatusUnauthorized, codeInvalidToken)

	resp = api.get("/api/users/"+uid, nil, map[string]string{"Authorization": "Bearer garbage"})
	wantErrorCode(t, resp, http.StatusUnauthorized, codeInvalidToken)

	// A refresh token never passes the access verification path.
	pair, err := api.tokens.Issue(uid, clinic.RolePatient)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	resp = api.get("/api/users/"+uid, nil, map[string]string{"Authorization": "Bearer " + pair.RefreshToken})
	wantErrorCode(t, resp, http.StatusUnauthorized, codeInvalidToken)
}

func TestRefreshToken(t *testing.T) {
	api := newTestAPI(t)
	_, _ = api.register("d@x.com", "patient")

	resp := api.post("/api/auth/login", map[string]any{
		"email":    "d@x.com",
		"password": "secret123",
	}, nil)
	wantStatus(t, resp, http.StatusOK)
	login := decode[authResponse](t, resp)

	resp = api.post("/api/auth/refresh-token", map[string]any{
		"refreshToken": login.Tokens.RefreshToken,
	}, nil)
	wantStatus(t, resp, http.StatusOK)
	pair := decode[auth.TokenPair](t, resp)
	if pair.AccessToken == "" {
		t.Fatalf("no access token after refresh")
	}
	if pair.RefreshToken != login.Tokens.RefreshToken {
		t.Fatalf("refresh token must not rotate")
	}

	resp = api.post("/api/auth/refresh-token", map[string]any{
		"refreshToken": login.Tokens.AccessToken,
	}, nil)
	wantErrorCode(t, resp, http.StatusUnauthorized, codeInvalidToken)
}

func TestMedicalHistoryRBACAndMerge(t *testing.T) {
	api := newTestAPI(t)
	uid, patientHeader := api.register("p1@x.com", "patient")
	_, doctorHeader := api.seed(clinic.RoleDoctor)
	_, strangerHeader := api.register("p2@x.com", "patient")

	// Owner writes allergies only.
	resp := api.do(http.MethodPut, "/api/users/"+uid+"/medical-history", map[string]any{
		"allergies": []string{"penicillin"},
	}, patientHeader)
	wantStatus(t, resp, http.StatusOK)

	// Doctor writes medications; allergies survive the merge.
	resp = api.do(http.MethodPut, "/api/users/"+uid+"/medical-history", map[string]any{
		"medications": []string{"ibuprofen"},
	}, doctorHeader)
	wantStatus(t, resp, http.StatusOK)
	hist := decode[clinic.MedicalHistory](t, resp)
	if len(hist.Allergies) != 1 || hist.Allergies[0] != "penicillin" {
		t.Fatalf("allergies lost in merge: %v", hist.Allergies)
	}
	if len(hist.Medications) != 1 {
		t.Fatalf("medications = %v", hist.Medications)
	}

	// A non-owner patient is denied both ways.
	resp = api.get("/api/users/"+uid+"/medical-history", nil, strangerHeader)
	wantErrorCode(t, resp, http.StatusForbidden, codeInsufficientPerms)
	resp = api.do(http.MethodPut, "/api/users/"+uid+"/medical-history", map[string]any{
		"conditions": []string{"flu"},
	}, strangerHeader)
	wantErrorCode(t, resp, http.StatusForbidden, codeInsufficientPerms)

	// The accesses above show up in the subject's data access report.
	resp = api.get("/api/users/"+uid+"/data-access-report", nil, patientHeader)
	wantStatus(t, resp, http.StatusOK)
	report := decode[struct {
		Items []audit.Entry `json:"items"`
	}](t, resp)
	if len(report.Items) == 0 {
		t.Fatalf("expected audit entries in the report")
	}
}

func TestRolePromotion(t *testing.T) {
	api := newTestAPI(t)
	uid, visitorHeader := api.register("v@x.com", "visitor")
	_, operatorHeader := api.seed(clinic.RoleOperator)

	// Visitors cannot promote themselves.
	resp := api.do(http.MethodPut, "/api/users/"+uid+"/status", map[string]any{
		"role": "patient",
	}, visitorHeader)
	wantErrorCode(t, resp, http.StatusForbidden, codeInsufficientPerms)

	// Operator promotes the visitor to patient.
	resp = api.do(http.MethodPut, "/api/users/"+uid+"/status", map[string]any{
		"role": "patient",
	}, operatorHeader)
	wantStatus(t, resp, http.StatusOK)
	profile := decode[clinic.Profile](t, resp)
	if profile.Role != clinic.RolePatient {
		t.Fatalf("role = %s, want patient", profile.Role)
	}

	// Only the patient role is a valid promotion target.
	resp = api.do(http.MethodPut, "/api/users/"+uid+"/status", map[string]any{
		"role": "admin",
	}, operatorHeader)
	wantErrorCode(t, resp, http.StatusBadRequest, codeInvalidInput)
}

func TestUserListAndDeleteAreAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	uid, patientHeader := api.register("del@x.com", "patient")
	_, adminHeader := api.seed(clinic.RoleAdmin)

	resp := api.get("/api/users", nil, patientHeader)
	wantErrorCode(t, resp, http.StatusForbidden, codeInsufficientPerms)

	resp = api.get("/api/users", nil, adminHeader)
	wantStatus(t, resp, http.StatusOK)

	resp = api.do(http.MethodDelete, "/api/users/"+uid, nil, patientHeader)
	wantErrorCode(t, resp, http.StatusForbidden, codeInsufficientPerms)

	resp = api.do(http.MethodDelete, "/api/users/"+uid, nil, adminHeader)
	wantStatus(t, resp, http.StatusOK)

	resp = api.get("/api/users/"+uid, nil, adminHeader)
	wantErrorCode(t, resp, http.StatusNotFound, codeNotFound)
}

func TestAppointmentFlow(t *testing.T) {
	api := newTestAPI(t)
	patientID, patientHeader := api.register("appt@x.com", "patient")
	doctorID, _ := api.seed(clinic.RoleDoctor)

	// A week out, mid-morning, inside working hours.
	day := time.Now().UTC().AddDate(0, 0, 7)
	start := time.Date(day.Year(), day.Month(), day.Day(), 10, 0, 0, 0, time.UTC)

	resp := api.post("/api/appointments", map[string]any{
		"patientId": patientID,
		"doctorId":  doctorID,
		"dateTime":  start.Format(time.RFC3339),
		"duration":  30,
		"type":      "initial",
		"reason":    "toothache",
	}, patientHeader)
	wantStatus(t, resp, http.StatusCreated)
	appt := decode[clinic.Appointment](t, resp)
	if appt.Status != clinic.AppointmentScheduled {
		t.Fatalf("status = %s", appt.Status)
	}

	// The same slot for the same doctor conflicts.
	resp = api.post("/api/appointments", map[string]any{
		"patientId": patientID,
		"doctorId":  doctorID,
		"dateTime":  start.Format(time.RFC3339),
		"duration":  30,
		"type":      "initial",
		"reason":    "again",
	}, patientHeader)
	wantErrorCode(t, resp, http.StatusConflict, codeConflict)

	// The slot grid marks 10:00 as taken.
	resp = api.get("/api/appointments/available-slots", url.Values{
		"doctorId": {doctorID},
		"date":     {start.Format("2006-01-02")},
	}, patientHeader)
	wantStatus(t, resp, http.StatusOK)
	slots := decode[struct {
		Items []clinic.TimeSlot `json:"items"`
	}](t, resp)
	seen := false
	for _, s := range slots.Items {
		if s.Start.Equal(start) {
			seen = true
			if s.Available {
				t.Fatalf("booked slot reported available")
			}
		}
	}
	if !seen {
		t.Fatalf("booked slot missing from the grid")
	}

	// Patient listing is forced to their own bookings.
	resp = api.get("/api/appointments", nil, patientHeader)
	wantStatus(t, resp, http.StatusOK)
	list := decode[struct {
		Items []clinic.Appointment `json:"items"`
	}](t, resp)
	if len(list.Items) != 1 || list.Items[0].PatientID != patientID {
		t.Fatalf("unexpected listing: %+v", list.Items)
	}

	// Cancel, then cancelling again conflicts.
	resp = api.do(http.MethodDelete, "/api/appointments/"+appt.ID, map[string]any{
		"reason": "cannot make it",
	}, patientHeader)
	wantStatus(t, resp, http.StatusOK)
	cancelled := decode[clinic.Appointment](t, resp)
	if cancelled.Status != clinic.AppointmentCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	resp = api.do(http.MethodDelete, "/api/appointments/"+appt.ID, nil, patientHeader)
	wantErrorCode(t, resp, http.StatusConflict, codeConflict)
}

func TestAppointmentListCrossPatientFilterDenied(t *testing.T) {
	api := newTestAPI(t)
	ownID, header := api.register("lista@x.com", "patient")
	otherID, _ := api.register("listb@x.com", "patient")
	_, operatorHeader := api.seed(clinic.RoleOperator)

	// Asking for someone else's bookings is a refusal, not a scoped 200.
	resp := api.get("/api/appointments", url.Values{"patientId": {otherID}}, header)
	wantErrorCode(t, resp, http.StatusForbidden, codeInsufficientPerms)

	// Filtering by the caller's own id stays an ordinary scoped read.
	resp = api.get("/api/appointments", url.Values{"patientId": {ownID}}, header)
	wantStatus(t, resp, http.StatusOK)

	// Staff keep the cross-patient view.
	resp = api.get("/api/appointments", url.Values{"patientId": {otherID}}, operatorHeader)
	wantStatus(t, resp, http.StatusOK)
}

func TestCatalogManagement(t *testing.T) {
	api := newTestAPI(t)
	_, patientHeader := api.register("cat@x.com", "patient")
	_, doctorHeader := api.seed(clinic.RoleDoctor)

	// Patients can browse but not mutate.
	resp := api.post("/api/procedures/categories", map[string]any{
		"name": "Implants",
	}, patientHeader)
	wantErrorCode(t, resp, http.StatusForbidden, codeInsufficientPerms)

	resp = api.post("/api/procedures/categories", map[string]any{
		"name":     "Implants",
		"priority": 1,
	}, doctorHeader)
	wantStatus(t, resp, http.StatusCreated)
	cat := decode[clinic.ProcedureCategory](t, resp)

	resp = api.post("/api/procedures/types", map[string]any{
		"categoryId": cat.ID,
		"name":       "Single implant",
		"duration":   90,
		"basePrice":  120000,
		"currency":   "USD",
		"checkupIntervals": []map[string]any{
			{"stageName": "first control", "minDays": 5, "maxDays": 10, "recommendedDays": 7, "isRequired": true},
		},
	}, doctorHeader)
	wantStatus(t, resp, http.StatusCreated)
	pt := decode[clinic.ProcedureType](t, resp)

	resp = api.get("/api/procedures/types", nil, patientHeader)
	wantStatus(t, resp, http.StatusOK)

	// Recommended control dates derive from the intervals just stored.
	resp = api.get("/api/appointments/recommended-control-dates", url.Values{
		"procedureTypeId": {pt.ID},
		"performedAt":     {"2025-03-01"},
	}, patientHeader)
	wantStatus(t, resp, http.StatusOK)
	recs := decode[struct {
		Items []clinic.ControlRecommendation `json:"items"`
	}](t, resp)
	if len(recs.Items) != 1 {
		t.Fatalf("recommendations = %d, want 1", len(recs.Items))
	}
	wantDay := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	if !recs.Items[0].Range.Recommended.Equal(wantDay) {
		t.Fatalf("recommended = %s, want %s", recs.Items[0].Range.Recommended, wantDay)
	}
}

func TestNotificationsEndpoints(t *testing.T) {
	api := newTestAPI(t)
	uid, header := api.register("n1@x.com", "patient")
	_, otherHeader := api.register("n2@x.com", "patient")

	n, err := api.notifs.Create(context.Background(), &clinic.Notification{
		UserID:  uid,
		Type:    clinic.NotifySystem,
		Title:   "Welcome",
		Message: "Your account is ready.",
	})
	if err != nil {
		t.Fatalf("create notification: %v", err)
	}

	resp := api.get("/api/notifications", nil, header)
	wantStatus(t, resp, http.StatusOK)
	list := decode[struct {
		Items []clinic.Notification `json:"items"`
	}](t, resp)
	if len(list.Items) != 1 {
		t.Fatalf("notifications = %d, want 1", len(list.Items))
	}

	// Someone else's notification cannot be marked read.
	resp = api.do(http.MethodPut, "/api/notifications/"+n.ID+"/read", nil, otherHeader)
	wantErrorCode(t, resp, http.StatusNotFound, codeNotFound)

	resp = api.do(http.MethodPut, "/api/notifications/"+n.ID+"/read", nil, header)
	wantStatus(t, resp, http.StatusOK)
	read := decode[clinic.Notification](t, resp)
	if read.Status != clinic.NotificationRead || read.ReadAt == nil {
		t.Fatalf("notification not marked read: %+v", read)
	}

	resp = api.get("/api/notifications", url.Values{"unread": {"true"}}, header)
	wantStatus(t, resp, http.StatusOK)
	unread := decode[struct {
		Items []clinic.Notification `json:"items"`
	}](t, resp)
	if len(unread.Items) != 0 {
		t.Fatalf("unread = %d, want 0", len(unread.Items))
	}
}

func TestValidationEnvelope(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/api/auth/register", map[string]any{
		"email": "only@x.com",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	e := decode[apiError](t, resp)
	if e.Code != codeMissingField {
		t.Fatalf("code = %s, want %s", e.Code, codeMissingField)
	}
	if _, ok := e.Details["password"]; !ok {
		t.Fatalf("details missing password entry: %v", e.Details)
	}
	if _, ok := e.Details["role"]; !ok {
		t.Fatalf("details missing role entry: %v", e.Details)
	}
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil, nil)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = api.get("/readyz", nil, nil)
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = api.get("/api/info", nil, nil)
	wantStatus(t, resp, http.StatusOK)
	info := decode[map[string]any](t, resp)
	if info["version"] != "test" {
		t.Fatalf("version = %v", info["version"])
	}
}
