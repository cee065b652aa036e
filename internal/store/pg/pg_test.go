package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"medidesk.org/internal/clinic"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func profileRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "email", "role", "full_name", "phone_number", "birth_date", "gender",
		"address", "emergency_contact", "medical_history", "created_at", "updated_at",
	}).AddRow("u-1", "a@example.com", "patient", "Ana", "+370", nil, "female",
		nil, []byte(`{"name":"Tomas","phone":"+371","relation":"spouse"}`),
		[]byte(`{"allergies":["penicillin"],"medications":[],"conditions":[]}`), now, now)
}

func TestProfilesFind(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select (.+) from profiles where id").
		WithArgs("u-1").
		WillReturnRows(profileRows())

	p, err := store.Profiles().Find(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if p.Role != clinic.RolePatient || p.Gender != "female" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if p.EmergencyContact == nil || p.EmergencyContact.Name != "Tomas" {
		t.Fatalf("emergency contact not decoded: %+v", p.EmergencyContact)
	}
	if len(p.MedicalHistory.Allergies) != 1 {
		t.Fatalf("medical history not decoded: %+v", p.MedicalHistory)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProfilesFindMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select (.+) from profiles where id").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Profiles().Find(context.Background(), "ghost")
	if !errors.Is(err, clinic.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProfilesCreateDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into profiles").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.Profiles().Create(context.Background(), &clinic.Profile{
		ID: "u-1", Email: "a@example.com", Role: clinic.RolePatient,
		FullName: "Ana", PhoneNumber: "+370",
	})
	if !errors.Is(err, clinic.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestProfilesUpdateBuildsPartialSet(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`update profiles set full_name = \$1, updated_at = now\(\) where id = \$2`).
		WithArgs("Ana Petraitiene", "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select (.+) from profiles where id").
		WithArgs("u-1").
		WillReturnRows(profileRows())

	name := "Ana Petraitiene"
	_, err := store.Profiles().Update(context.Background(), "u-1", clinic.ProfileUpdate{FullName: &name})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProfilesSetRoleMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update profiles set role").
		WithArgs("patient", "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.Profiles().SetRole(context.Background(), "ghost", clinic.RolePatient)
	if !errors.Is(err, clinic.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppointmentsListFilters(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`select (.+) from appointments where doctor_id = \$1 and status = \$2`).
		WithArgs("doc-1", "scheduled").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "patient_id", "doctor_id", "starts_at", "ends_at", "duration_minutes", "status",
			"visit_type", "reason", "notes", "previous_appointment_id", "cancellation_reason",
			"reminder_sent", "created_by", "created_at", "updated_at",
		}).AddRow("a-1", "pat-1", "doc-1", now, now.Add(30*time.Minute), 30, "scheduled",
			"initial", "checkup", nil, nil, nil, false, "pat-1", now, now))

	got, err := store.Appointments().List(context.Background(), clinic.AppointmentFilter{
		DoctorID: "doc-1",
		Status:   clinic.AppointmentScheduled,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a-1" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProcedureTypeIntervalsRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select (.+) from procedure_types where id").
		WithArgs("pt-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "category_id", "name", "description", "duration_minutes", "base_price",
			"currency", "checkup_intervals", "active", "created_at", "updated_at",
		}).AddRow("pt-1", "cat-1", "Implant placement", "", 90, 80000, "EUR",
			[]byte(`[{"stageName":"suture removal","minDays":7,"maxDays":10,"recommendedDays":7,"isRequired":true}]`),
			true, now, now))

	pt, err := store.Procedures().FindType(context.Background(), "pt-1")
	if err != nil {
		t.Fatalf("FindType: %v", err)
	}
	if len(pt.CheckupIntervals) != 1 || pt.CheckupIntervals[0].Stage != "suture removal" {
		t.Fatalf("intervals not decoded: %+v", pt.CheckupIntervals)
	}
}
