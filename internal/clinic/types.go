package clinic

import "time"

// Role classifies what a user may do across the API. Roles are carried in the
// access token claim and mirrored on the profile document.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleDoctor   Role = "doctor"
	RoleOperator Role = "operator"
	RolePatient  Role = "patient"
	RoleVisitor  Role = "visitor"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleOperator, RolePatient, RoleVisitor:
		return true
	}
	return false
}

// StaffRole reports whether r belongs to clinic personnel.
func StaffRole(r Role) bool {
	return r == RoleAdmin || r == RoleDoctor || r == RoleOperator
}

// RegistrableRole reports whether r may be chosen at self-registration.
func RegistrableRole(r Role) bool {
	return r == RolePatient || r == RoleVisitor
}

// MedicalHistory is the per-patient medical sub-record. Fields are updated
// independently; a missing field always reads as an empty list, never null.
type MedicalHistory struct {
	Allergies   []string `json:"allergies"`
	Medications []string `json:"medications"`
	Conditions  []string `json:"conditions"`
}

// Normalized returns a copy with nil slices replaced by empty ones.
func (h MedicalHistory) Normalized() MedicalHistory {
	if h.Allergies == nil {
		h.Allergies = []string{}
	}
	if h.Medications == nil {
		h.Medications = []string{}
	}
	if h.Conditions == nil {
		h.Conditions = []string{}
	}
	return h
}

// EmergencyContact identifies who to call on the patient's behalf.
type EmergencyContact struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Relation string `json:"relation"`
}

// Profile is the user document stored alongside the identity record. Its ID
// equals the identity subject id.
type Profile struct {
	ID               string            `json:"uid"`
	Email            string            `json:"email"`
	Role             Role              `json:"role"`
	FullName         string            `json:"fullName"`
	PhoneNumber      string            `json:"phoneNumber"`
	BirthDate        *time.Time        `json:"birthDate,omitempty"`
	Gender           string            `json:"gender,omitempty"`
	Address          string            `json:"address,omitempty"`
	EmergencyContact *EmergencyContact `json:"emergencyContact,omitempty"`
	MedicalHistory   MedicalHistory    `json:"medicalHistory"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// ProfileUpdate carries optional profile mutations; nil means keep.
type ProfileUpdate struct {
	FullName         *string
	PhoneNumber      *string
	Email            *string
	BirthDate        *time.Time
	Gender           *string
	Address          *string
	EmergencyContact *EmergencyContact
}

// MedicalHistoryUpdate replaces individual history fields; nil keeps the
// stored list.
type MedicalHistoryUpdate struct {
	Allergies   []string
	Medications []string
	Conditions  []string
}

// Appointment statuses and types mirror the scheduling workflow.
const (
	AppointmentScheduled = "scheduled"
	AppointmentConfirmed = "confirmed"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
	AppointmentNoShow    = "no-show"
)

const (
	VisitInitial   = "initial"
	VisitFollowUp  = "follow-up"
	VisitControl   = "control"
	VisitProcedure = "procedure"
)

// Appointment is a booked visit between a patient and a doctor.
type Appointment struct {
	ID                    string    `json:"id"`
	PatientID             string    `json:"patientId"`
	DoctorID              string    `json:"doctorId"`
	StartsAt              time.Time `json:"dateTime"`
	EndsAt                time.Time `json:"endTime"`
	DurationMinutes       int       `json:"duration"`
	Status                string    `json:"status"`
	Type                  string    `json:"type"`
	Reason                string    `json:"reason"`
	Notes                 string    `json:"notes,omitempty"`
	PreviousAppointmentID string    `json:"previousAppointmentId,omitempty"`
	CancellationReason    string    `json:"cancellationReason,omitempty"`
	ReminderSent          bool      `json:"reminderSent"`
	CreatedBy             string    `json:"createdBy"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// AppointmentUpdate carries optional appointment mutations; nil means keep.
type AppointmentUpdate struct {
	StartsAt           *time.Time
	DurationMinutes    *int
	Status             *string
	Notes              *string
	CancellationReason *string
	ReminderSent       *bool
}

// AppointmentFilter narrows listings; zero values are ignored.
type AppointmentFilter struct {
	From      *time.Time
	To        *time.Time
	Status    string
	Type      string
	PatientID string
	DoctorID  string
}

// TimeSlot is one bookable window in a doctor's day.
type TimeSlot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// DateRange bounds a recommended follow-up window.
type DateRange struct {
	Earliest    time.Time `json:"earliest"`
	Latest      time.Time `json:"latest"`
	Recommended time.Time `json:"recommended"`
}

// ControlRecommendation names a checkup stage and its computed window.
type ControlRecommendation struct {
	Stage    string    `json:"stage"`
	Required bool      `json:"isRequired"`
	Range    DateRange `json:"range"`
}

// ProcedureCategory groups procedure types for the catalog.
type ProcedureCategory struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Priority    int       `json:"priority"`
	Active      bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CheckupInterval describes when a follow-up visit should happen after a
// procedure, counted in days.
type CheckupInterval struct {
	Stage           string `json:"stageName"`
	MinDays         int    `json:"minDays"`
	MaxDays         int    `json:"maxDays"`
	RecommendedDays int    `json:"recommendedDays"`
	Required        bool   `json:"isRequired"`
}

// ProcedureType is a bookable procedure with pricing and follow-up schedule.
type ProcedureType struct {
	ID               string            `json:"id"`
	CategoryID       string            `json:"categoryId"`
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	DurationMinutes  int               `json:"duration"`
	BasePrice        int64             `json:"basePrice"`
	Currency         string            `json:"currency"`
	CheckupIntervals []CheckupInterval `json:"checkupIntervals"`
	Active           bool              `json:"isActive"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Notification kinds and delivery states.
const (
	NotifyAppointment = "appointment"
	NotifyFollowUp    = "followup"
	NotifySystem      = "system"
	NotifyMessage     = "message"
	NotifyReminder    = "reminder"
)

const (
	NotificationSent      = "sent"
	NotificationDelivered = "delivered"
	NotificationRead      = "read"
)

// Notification is a per-user message shown in the app.
type Notification struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Type         string     `json:"type"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	Status       string     `json:"status"`
	ScheduledFor time.Time  `json:"scheduledFor"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	ReadAt       *time.Time `json:"readAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}
