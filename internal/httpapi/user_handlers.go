package httpapi

import (
	"net/http"
	"strings"
	"time"

	"medidesk.org/internal/auth"
	"medidesk.org/internal/clinic"
)

type profileUpdateRequest struct {
	FullName         *string                  `json:"fullName"`
	PhoneNumber      *string                  `json:"phoneNumber"`
	Email            *string                  `json:"email"`
	BirthDate        *time.Time               `json:"birthDate"`
	Gender           *string                  `json:"gender"`
	Address          *string                  `json:"address"`
	EmergencyContact *clinic.EmergencyContact `json:"emergencyContact"`
}

type medicalHistoryRequest struct {
	Allergies   []string `json:"allergies"`
	Medications []string `json:"medications"`
	Conditions  []string `json:"conditions"`
}

type statusRequest struct {
	Role string `json:"role"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAction(w, r, auth.ActionUserList, ""); !ok {
		return
	}
	list, err := a.profiles.List(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/users/")
	if rest == "doctors" {
		a.listDoctors(w, r)
		return
	}

	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, codeNotFound, "no such endpoint")
		return
	}
	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			a.getProfile(w, r, id)
		case http.MethodPut:
			a.updateProfile(w, r, id)
		case http.MethodDelete:
			a.deleteUser(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	case "medical-history":
		switch r.Method {
		case http.MethodGet:
			a.getMedicalHistory(w, r, id)
		case http.MethodPut:
			a.updateMedicalHistory(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
		}
	case "status":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.promoteUser(w, r, id)
	case "data-access-report":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.dataAccessReport(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, codeNotFound, "no such endpoint")
	}
}

func (a *API) listDoctors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAction(w, r, auth.ActionStaffView, ""); !ok {
		return
	}
	doctors, err := a.profiles.Doctors(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": doctors})
}

func (a *API) getProfile(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireAction(w, r, auth.ActionProfileRead, id); !ok {
		return
	}
	profile, err := a.profiles.Find(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireAction(w, r, auth.ActionProfileUpdate, id); !ok {
		return
	}
	var req profileUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidFormat, err.Error())
		return
	}

	// Email is the login key, shared with the identity record; changing it
	// is a separate admin-only action that rewires both.
	if req.Email != nil {
		if _, ok := a.requireAction(w, r, auth.ActionEmailChange, id); !ok {
			return
		}
		if _, err := a.accounts.ChangeEmail(r.Context(), id, *req.Email); err != nil {
			handleDomainError(w, r, err)
			return
		}
	}

	profile, err := a.profiles.Update(r.Context(), id, clinic.ProfileUpdate{
		FullName:         req.FullName,
		PhoneNumber:      req.PhoneNumber,
		BirthDate:        req.BirthDate,
		Gender:           req.Gender,
		Address:          req.Address,
		EmergencyContact: req.EmergencyContact,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireAction(w, r, auth.ActionUserDelete, id); !ok {
		return
	}
	if err := a.accounts.DeleteAccount(r.Context(), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if a.roles != nil {
		a.roles.Invalidate(id)
	}
	a.record(r, string(auth.ActionUserDelete), id, nil)
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

func (a *API) getMedicalHistory(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireAction(w, r, auth.ActionMedicalRead, id); !ok {
		return
	}
	profile, err := a.profiles.Find(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.record(r, string(auth.ActionMedicalRead), id, nil)
	writeJSON(w, http.StatusOK, profile.MedicalHistory)
}

func (a *API) updateMedicalHistory(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireAction(w, r, auth.ActionMedicalWrite, id); !ok {
		return
	}
	var req medicalHistoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidFormat, err.Error())
		return
	}

	// A supplied field replaces that list; an omitted field keeps the stored
	// one. Decoding leaves omitted slices nil, which the merge treats as keep.
	profile, err := a.profiles.UpdateMedicalHistory(r.Context(), id, clinic.MedicalHistoryUpdate{
		Allergies:   req.Allergies,
		Medications: req.Medications,
		Conditions:  req.Conditions,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.record(r, string(auth.ActionMedicalWrite), id, map[string]any{
		"allergies":   req.Allergies != nil,
		"medications": req.Medications != nil,
		"conditions":  req.Conditions != nil,
	})
	writeJSON(w, http.StatusOK, profile.MedicalHistory)
}

func (a *API) promoteUser(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireAction(w, r, auth.ActionRolePromote, id); !ok {
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidFormat, err.Error())
		return
	}
	profile, err := a.profiles.Promote(r.Context(), id, clinic.Role(req.Role))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if a.roles != nil {
		a.roles.Invalidate(id)
	}
	a.record(r, string(auth.ActionRolePromote), id, map[string]any{"role": req.Role})
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) dataAccessReport(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireAction(w, r, auth.ActionAuditRead, id); !ok {
		return
	}
	if a.audit == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []any{}})
		return
	}
	entries, err := a.audit.Report(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

// record captures an audit entry; audit failures never fail the request.
func (a *API) record(r *http.Request, action, subjectID string, fields map[string]any) {
	if a.audit == nil {
		return
	}
	_ = a.audit.Record(r.Context(), action, subjectID, "allow", fields)
}
