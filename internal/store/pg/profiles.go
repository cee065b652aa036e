package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"medidesk.org/internal/clinic"
)

// Profiles implements clinic.ProfileStore.
type Profiles struct {
	db *sql.DB
}

var _ clinic.ProfileStore = (*Profiles)(nil)

// Profiles returns the profile store bound to the shared pool.
func (s *Store) Profiles() *Profiles { return &Profiles{db: s.db} }

const profileColumns = `id, email, role, full_name, phone_number, birth_date, gender, address,
	emergency_contact, medical_history, created_at, updated_at`

func (p *Profiles) Create(ctx context.Context, profile *clinic.Profile) error {
	contact, history, err := encodeProfileDocs(profile)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		insert into profiles (id, email, role, full_name, phone_number, birth_date, gender, address, emergency_contact, medical_history)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, profile.ID, profile.Email, string(profile.Role), profile.FullName, profile.PhoneNumber,
		profile.BirthDate, nullIfEmpty(profile.Gender), nullIfEmpty(profile.Address), contact, history)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return clinic.ErrAlreadyExists
	}
	return err
}

func (p *Profiles) Find(ctx context.Context, id string) (*clinic.Profile, error) {
	row := p.db.QueryRowContext(ctx,
		`select `+profileColumns+` from profiles where id = $1`, id)
	return scanProfile(row)
}

func (p *Profiles) List(ctx context.Context) ([]*clinic.Profile, error) {
	rows, err := p.db.QueryContext(ctx,
		`select `+profileColumns+` from profiles order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProfiles(rows)
}

func (p *Profiles) ListByRole(ctx context.Context, role clinic.Role) ([]*clinic.Profile, error) {
	rows, err := p.db.QueryContext(ctx,
		`select `+profileColumns+` from profiles where role = $1 order by full_name asc`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProfiles(rows)
}

func (p *Profiles) Update(ctx context.Context, id string, upd clinic.ProfileUpdate) (*clinic.Profile, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}
	if upd.FullName != nil {
		add("full_name", *upd.FullName)
	}
	if upd.PhoneNumber != nil {
		add("phone_number", *upd.PhoneNumber)
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.BirthDate != nil {
		add("birth_date", *upd.BirthDate)
	}
	if upd.Gender != nil {
		add("gender", nullIfEmpty(*upd.Gender))
	}
	if upd.Address != nil {
		add("address", nullIfEmpty(*upd.Address))
	}
	if upd.EmergencyContact != nil {
		contact, err := json.Marshal(upd.EmergencyContact)
		if err != nil {
			return nil, err
		}
		add("emergency_contact", contact)
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update profiles set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := p.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return nil, clinic.ErrAlreadyExists
			}
			return nil, err
		}
		if err := requireRow(res); err != nil {
			return nil, err
		}
	}
	return p.Find(ctx, id)
}

func (p *Profiles) SaveMedicalHistory(ctx context.Context, id string, hist clinic.MedicalHistory) (*clinic.Profile, error) {
	history, err := json.Marshal(hist)
	if err != nil {
		return nil, err
	}
	res, err := p.db.ExecContext(ctx,
		`update profiles set medical_history = $1, updated_at = now() where id = $2`, history, id)
	if err != nil {
		return nil, err
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}
	return p.Find(ctx, id)
}

func (p *Profiles) SetRole(ctx context.Context, id string, role clinic.Role) (*clinic.Profile, error) {
	res, err := p.db.ExecContext(ctx,
		`update profiles set role = $1, updated_at = now() where id = $2`, string(role), id)
	if err != nil {
		return nil, err
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}
	return p.Find(ctx, id)
}

func (p *Profiles) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `delete from profiles where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func encodeProfileDocs(profile *clinic.Profile) ([]byte, []byte, error) {
	var contact []byte
	if profile.EmergencyContact != nil {
		var err error
		contact, err = json.Marshal(profile.EmergencyContact)
		if err != nil {
			return nil, nil, err
		}
	}
	history, err := json.Marshal(profile.MedicalHistory.Normalized())
	if err != nil {
		return nil, nil, err
	}
	return contact, history, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*clinic.Profile, error) {
	var (
		profile clinic.Profile
		role    string
		gender  sql.NullString
		address sql.NullString
		contact []byte
		history []byte
	)
	err := row.Scan(&profile.ID, &profile.Email, &role, &profile.FullName, &profile.PhoneNumber,
		&profile.BirthDate, &gender, &address, &contact, &history, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, clinic.ErrNotFound
		}
		return nil, err
	}
	profile.Role = clinic.Role(role)
	profile.Gender = gender.String
	profile.Address = address.String
	if len(contact) > 0 {
		var ec clinic.EmergencyContact
		if err := json.Unmarshal(contact, &ec); err != nil {
			return nil, fmt.Errorf("decode emergency contact: %w", err)
		}
		profile.EmergencyContact = &ec
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &profile.MedicalHistory); err != nil {
			return nil, fmt.Errorf("decode medical history: %w", err)
		}
	}
	profile.MedicalHistory = profile.MedicalHistory.Normalized()
	return &profile, nil
}

func collectProfiles(rows *sql.Rows) ([]*clinic.Profile, error) {
	var out []*clinic.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, profile)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return clinic.ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
