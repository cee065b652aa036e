package clinic

import (
	"context"
	"sort"
	"sync"
	"time"

	"medidesk.org/internal/ids"
)

// In-process store implementations. They back the tests and the DSN-less
// development mode.

// MemoryProfiles implements ProfileStore in memory.
type MemoryProfiles struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewMemoryProfiles returns an empty profile store.
func NewMemoryProfiles() *MemoryProfiles {
	return &MemoryProfiles{profiles: make(map[string]*Profile)}
}

var _ ProfileStore = (*MemoryProfiles)(nil)

func (m *MemoryProfiles) Create(ctx context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = ids.New()
	}
	if _, ok := m.profiles[p.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *MemoryProfiles) Find(ctx context.Context, id string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryProfiles) List(ctx context.Context) ([]*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryProfiles) ListByRole(ctx context.Context, role Role) ([]*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Profile
	for _, p := range m.profiles {
		if p.Role == role {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryProfiles) Update(ctx context.Context, id string, upd ProfileUpdate) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.FullName != nil {
		p.FullName = *upd.FullName
	}
	if upd.PhoneNumber != nil {
		p.PhoneNumber = *upd.PhoneNumber
	}
	if upd.Email != nil {
		p.Email = *upd.Email
	}
	if upd.BirthDate != nil {
		p.BirthDate = upd.BirthDate
	}
	if upd.Gender != nil {
		p.Gender = *upd.Gender
	}
	if upd.Address != nil {
		p.Address = *upd.Address
	}
	if upd.EmergencyContact != nil {
		ec := *upd.EmergencyContact
		p.EmergencyContact = &ec
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryProfiles) SaveMedicalHistory(ctx context.Context, id string, hist MedicalHistory) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.MedicalHistory = hist.Normalized()
	cp := *p
	return &cp, nil
}

func (m *MemoryProfiles) SetRole(ctx context.Context, id string, role Role) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Role = role
	cp := *p
	return &cp, nil
}

func (m *MemoryProfiles) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[id]; !ok {
		return ErrNotFound
	}
	delete(m.profiles, id)
	return nil
}

// MemoryAppointments implements AppointmentStore in memory.
type MemoryAppointments struct {
	mu           sync.RWMutex
	appointments map[string]*Appointment
}

// NewMemoryAppointments returns an empty appointment store.
func NewMemoryAppointments() *MemoryAppointments {
	return &MemoryAppointments{appointments: make(map[string]*Appointment)}
}

var _ AppointmentStore = (*MemoryAppointments)(nil)

func (m *MemoryAppointments) Create(ctx context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = ids.New()
	}
	if _, ok := m.appointments[a.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *a
	m.appointments[a.ID] = &cp
	return nil
}

func (m *MemoryAppointments) Find(ctx context.Context, id string) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryAppointments) List(ctx context.Context, f AppointmentFilter) ([]*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Appointment
	for _, a := range m.appointments {
		if !matchAppointment(a, f) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func matchAppointment(a *Appointment, f AppointmentFilter) bool {
	if f.PatientID != "" && a.PatientID != f.PatientID {
		return false
	}
	if f.DoctorID != "" && a.DoctorID != f.DoctorID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.From != nil && a.EndsAt.Before(*f.From) {
		return false
	}
	if f.To != nil && a.StartsAt.After(*f.To) {
		return false
	}
	return true
}

func (m *MemoryAppointments) Update(ctx context.Context, id string, upd AppointmentUpdate) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.StartsAt != nil {
		a.StartsAt = *upd.StartsAt
	}
	if upd.DurationMinutes != nil {
		a.DurationMinutes = *upd.DurationMinutes
	}
	if upd.StartsAt != nil || upd.DurationMinutes != nil {
		a.EndsAt = a.StartsAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
	}
	if upd.Status != nil {
		a.Status = *upd.Status
	}
	if upd.Notes != nil {
		a.Notes = *upd.Notes
	}
	if upd.CancellationReason != nil {
		a.CancellationReason = *upd.CancellationReason
	}
	if upd.ReminderSent != nil {
		a.ReminderSent = *upd.ReminderSent
	}
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	return &cp, nil
}

func (m *MemoryAppointments) DueReminders(ctx context.Context, deadline time.Time) ([]*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Appointment
	for _, a := range m.appointments {
		if a.ReminderSent || a.Status == AppointmentCancelled || a.Status == AppointmentCompleted {
			continue
		}
		if a.StartsAt.After(deadline) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

// MemoryProcedures implements ProcedureStore in memory.
type MemoryProcedures struct {
	mu         sync.RWMutex
	categories map[string]*ProcedureCategory
	types      map[string]*ProcedureType
}

// NewMemoryProcedures returns an empty catalog store.
func NewMemoryProcedures() *MemoryProcedures {
	return &MemoryProcedures{
		categories: make(map[string]*ProcedureCategory),
		types:      make(map[string]*ProcedureType),
	}
}

var _ ProcedureStore = (*MemoryProcedures)(nil)

func (m *MemoryProcedures) CreateCategory(ctx context.Context, c *ProcedureCategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New()
	}
	if _, ok := m.categories[c.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *c
	m.categories[c.ID] = &cp
	return nil
}

func (m *MemoryProcedures) FindCategory(ctx context.Context, id string) (*ProcedureCategory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryProcedures) ListCategories(ctx context.Context, activeOnly bool) ([]*ProcedureCategory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ProcedureCategory
	for _, c := range m.categories {
		if activeOnly && !c.Active {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryProcedures) UpdateCategory(ctx context.Context, c *ProcedureCategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	m.categories[c.ID] = &cp
	return nil
}

func (m *MemoryProcedures) CreateType(ctx context.Context, t *ProcedureType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = ids.New()
	}
	if _, ok := m.types[t.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *t
	m.types[t.ID] = &cp
	return nil
}

func (m *MemoryProcedures) FindType(ctx context.Context, id string) (*ProcedureType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.types[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryProcedures) ListTypes(ctx context.Context, categoryID string, activeOnly bool) ([]*ProcedureType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ProcedureType
	for _, t := range m.types {
		if categoryID != "" && t.CategoryID != categoryID {
			continue
		}
		if activeOnly && !t.Active {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryProcedures) UpdateType(ctx context.Context, t *ProcedureType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.types[t.ID]; !ok {
		return ErrNotFound
	}
	cp := *t
	m.types[t.ID] = &cp
	return nil
}

// MemoryNotifications implements NotificationStore in memory.
type MemoryNotifications struct {
	mu            sync.RWMutex
	notifications map[string]*Notification
}

// NewMemoryNotifications returns an empty notification store.
func NewMemoryNotifications() *MemoryNotifications {
	return &MemoryNotifications{notifications: make(map[string]*Notification)}
}

var _ NotificationStore = (*MemoryNotifications)(nil)

func (m *MemoryNotifications) Create(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == "" {
		n.ID = ids.New()
	}
	if _, ok := m.notifications[n.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *MemoryNotifications) Find(ctx context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *MemoryNotifications) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Notification
	for _, n := range m.notifications {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.ReadAt != nil {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryNotifications) Update(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notifications[n.ID]; !ok {
		return ErrNotFound
	}
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}
