package clinic

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ProfileStore persists user profile documents.
type ProfileStore interface {
	Create(ctx context.Context, p *Profile) error
	Find(ctx context.Context, id string) (*Profile, error)
	List(ctx context.Context) ([]*Profile, error)
	ListByRole(ctx context.Context, role Role) ([]*Profile, error)
	Update(ctx context.Context, id string, upd ProfileUpdate) (*Profile, error)
	SaveMedicalHistory(ctx context.Context, id string, hist MedicalHistory) (*Profile, error)
	SetRole(ctx context.Context, id string, role Role) (*Profile, error)
	Delete(ctx context.Context, id string) error
}

// Profiles wraps ProfileStore with the domain rules: field validation, the
// per-field medical history merge and the visitor-to-patient promotion.
type Profiles struct {
	store ProfileStore
	now   func() time.Time
}

// NewProfiles constructs the profile service.
func NewProfiles(store ProfileStore) *Profiles {
	return &Profiles{store: store, now: time.Now}
}

// Create stores a fresh profile. The caller supplies the subject id issued by
// the identity gateway.
func (s *Profiles) Create(ctx context.Context, p *Profile) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: subject id is required", ErrInvalidInput)
	}
	p.Email = strings.TrimSpace(strings.ToLower(p.Email))
	if p.Email == "" || !strings.Contains(p.Email, "@") {
		return fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.FullName) == "" {
		return fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.PhoneNumber) == "" {
		return fmt.Errorf("%w: phone number is required", ErrInvalidInput)
	}
	if !ValidRole(p.Role) {
		return fmt.Errorf("%w: unsupported role %s", ErrInvalidInput, p.Role)
	}
	p.MedicalHistory = p.MedicalHistory.Normalized()
	now := s.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	return s.store.Create(ctx, p)
}

// Find returns the profile for a subject id.
func (s *Profiles) Find(ctx context.Context, id string) (*Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: subject id is required", ErrInvalidInput)
	}
	p, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	p.MedicalHistory = p.MedicalHistory.Normalized()
	return p, nil
}

// List returns all profiles.
func (s *Profiles) List(ctx context.Context) ([]*Profile, error) {
	return s.store.List(ctx)
}

// Doctors returns every profile carrying the doctor role.
func (s *Profiles) Doctors(ctx context.Context) ([]*Profile, error) {
	return s.store.ListByRole(ctx, RoleDoctor)
}

// Update applies partial profile mutations. Email changes pass through here
// only after the policy layer has confirmed an admin caller.
func (s *Profiles) Update(ctx context.Context, id string, upd ProfileUpdate) (*Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: subject id is required", ErrInvalidInput)
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &email
	}
	if upd.FullName != nil && strings.TrimSpace(*upd.FullName) == "" {
		return nil, fmt.Errorf("%w: full name must not be blank", ErrInvalidInput)
	}
	if upd.Gender != nil && !validGender(*upd.Gender) {
		return nil, fmt.Errorf("%w: unsupported gender value", ErrInvalidInput)
	}
	return s.store.Update(ctx, id, upd)
}

// UpdateMedicalHistory merges the update into the stored sub-record: a
// supplied field replaces that list, an omitted field keeps the stored one.
func (s *Profiles) UpdateMedicalHistory(ctx context.Context, id string, upd MedicalHistoryUpdate) (*Profile, error) {
	current, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := current.MedicalHistory
	if upd.Allergies != nil {
		merged.Allergies = upd.Allergies
	}
	if upd.Medications != nil {
		merged.Medications = upd.Medications
	}
	if upd.Conditions != nil {
		merged.Conditions = upd.Conditions
	}
	return s.store.SaveMedicalHistory(ctx, id, merged.Normalized())
}

// Promote moves a visitor to the patient role. Any other transition through
// this path is rejected; the actor check happens in the policy layer.
func (s *Profiles) Promote(ctx context.Context, id string, target Role) (*Profile, error) {
	if target != RolePatient {
		return nil, fmt.Errorf("%w: only promotion to patient is supported", ErrBadTransition)
	}
	current, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Role != RoleVisitor {
		return nil, fmt.Errorf("%w: %s is not a visitor", ErrBadTransition, id)
	}
	return s.store.SetRole(ctx, id, RolePatient)
}

// Delete removes the profile document.
func (s *Profiles) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: subject id is required", ErrInvalidInput)
	}
	return s.store.Delete(ctx, id)
}

// RoleOf reports the stored role for a subject; used by the strict-mode role
// cache at authentication time.
func (s *Profiles) RoleOf(ctx context.Context, id string) (Role, error) {
	p, err := s.store.Find(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Role, nil
}

func validGender(g string) bool {
	switch g {
	case "male", "female", "other", "prefer_not_to_say":
		return true
	}
	return false
}
