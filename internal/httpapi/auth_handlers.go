package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"medidesk.org/internal/auth"
	"medidesk.org/internal/clinic"
	"medidesk.org/internal/identity"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
	Role        string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type authResponse struct {
	User   *clinic.Profile `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}

func (a *API) handleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	switch strings.TrimPrefix(r.URL.Path, "/api/auth/") {
	case "register":
		a.register(w, r)
	case "login":
		a.login(w, r)
	case "refresh-token":
		a.refreshToken(w, r)
	case "forgot-password":
		a.forgotPassword(w, r)
	case "reset-password":
		a.resetPassword(w, r)
	default:
		writeError(w, r, http.StatusNotFound, codeNotFound, "no such endpoint")
	}
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidFormat, err.Error())
		return
	}
	if details := requiredFields(map[string]string{
		"email":       req.Email,
		"password":    req.Password,
		"fullName":    req.FullName,
		"phoneNumber": req.PhoneNumber,
		"role":        req.Role,
	}); len(details) > 0 {
		writeErrorDetails(w, r, http.StatusBadRequest, codeMissingField, "missing required fields", details)
		return
	}

	pair, profile, err := a.accounts.Register(r.Context(), auth.RegisterRequest{
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		Role:        clinic.Role(req.Role),
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{User: profile, Tokens: pair})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidFormat, err.Error())
		return
	}
	if details := requiredFields(map[string]string{
		"email":    req.Email,
		"password": req.Password,
	}); len(details) > 0 {
		writeErrorDetails(w, r, http.StatusBadRequest, codeMissingField, "missing required fields", details)
		return
	}

	pair, profile, err := a.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: profile, Tokens: pair})
}

func (a *API) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidFormat, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeErrorDetails(w, r, http.StatusBadRequest, codeMissingField, "missing required fields",
			map[string]string{"refreshToken": "required"})
		return
	}

	pair, err := a.accounts.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// forgotPassword answers identically whether or not the account exists, so
// the endpoint cannot be used to probe registered emails. Delivery of the
// reset link is out of band.
func (a *API) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidFormat, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeErrorDetails(w, r, http.StatusBadRequest, codeMissingField, "missing required fields",
			map[string]string{"email": "required"})
		return
	}

	if _, err := a.accounts.RequestPasswordReset(r.Context(), req.Email); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "if the account exists, a reset link has been sent",
	})
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidFormat, err.Error())
		return
	}
	if details := requiredFields(map[string]string{
		"token":       req.Token,
		"newPassword": req.NewPassword,
	}); len(details) > 0 {
		writeErrorDetails(w, r, http.StatusBadRequest, codeMissingField, "missing required fields", details)
		return
	}

	if err := a.accounts.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeError(w, r, http.StatusBadRequest, codeInvalidToken, "invalid or already used reset token")
			return
		}
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func requiredFields(fields map[string]string) map[string]string {
	var details map[string]string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			if details == nil {
				details = make(map[string]string)
			}
			details[name] = "required"
		}
	}
	return details
}
