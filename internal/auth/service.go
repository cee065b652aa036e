package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medidesk.org/internal/clinic"
	"medidesk.org/internal/identity"
	"medidesk.org/internal/ids"
)

const resetTokenTTL = time.Hour

// Service ties the identity gateway, the profile store and the token signer
// into the account lifecycle: register, login, refresh, password reset.
type Service struct {
	gateway  identity.Gateway
	profiles *clinic.Profiles
	tokens   *Tokens
}

// NewService wires the account service.
func NewService(gateway identity.Gateway, profiles *clinic.Profiles, tokens *Tokens) *Service {
	return &Service{gateway: gateway, profiles: profiles, tokens: tokens}
}

// RegisterRequest carries the self-service signup fields.
type RegisterRequest struct {
	Email       string
	Password    string
	FullName    string
	PhoneNumber string
	Role        clinic.Role
}

// Register creates the credential record and the profile document as a small
// saga: if the profile write fails after the identity insert succeeded, the
// identity is deleted again so a retry with the same email can pass. The
// storage unique constraint on email is the only duplicate check.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*TokenPair, *clinic.Profile, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if !clinic.RegistrableRole(req.Role) {
		return nil, nil, ErrRoleNotAllowed
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, nil, err
	}

	id := ids.New()
	if _, err := s.gateway.Create(ctx, id, req.Email, hash); err != nil {
		return nil, nil, err
	}

	profile := &clinic.Profile{
		ID:          id,
		Email:       req.Email,
		Role:        req.Role,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		// Compensate so the email is released for a retry.
		if delErr := s.gateway.Delete(ctx, id); delErr != nil {
			return nil, nil, fmt.Errorf("create profile: %w (identity cleanup failed: %v)", err, delErr)
		}
		return nil, nil, err
	}

	pair, err := s.tokens.Issue(id, profile.Role)
	if err != nil {
		return nil, nil, err
	}
	return pair, profile, nil
}

// Login verifies the credentials and issues a token pair carrying the stored
// role. Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, *clinic.Profile, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	ident, err := s.gateway.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if err := VerifyPassword(ident.PasswordHash, password); err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	profile, err := s.profiles.Find(ctx, ident.ID)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.tokens.Issue(ident.ID, profile.Role)
	if err != nil {
		return nil, nil, err
	}
	return pair, profile, nil
}

// Refresh validates the refresh token and issues a fresh access token. The
// role is re-read from storage so a promotion or demotion lands immediately;
// the refresh token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	role, err := s.profiles.RoleOf(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, clinic.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	access, expiresIn, err := s.tokens.IssueAccess(claims.Subject, role)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

// RequestPasswordReset creates a reset token for the account if one exists.
// A missing account is not an error; the HTTP layer answers identically in
// both cases so the endpoint cannot be used to probe registered emails.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (*identity.ResetToken, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	ident, err := s.gateway.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.gateway.CreateResetToken(ctx, ident.ID, resetTokenTTL)
}

// ResetPassword burns the token and stores the new password hash.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	userID, err := s.gateway.ConsumeResetToken(ctx, token)
	if err != nil {
		return err
	}
	return s.gateway.UpdatePassword(ctx, userID, hash)
}

// ChangeEmail rewires the login email on both the credential record and the
// profile document.
func (s *Service) ChangeEmail(ctx context.Context, id, email string) (*clinic.Profile, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := s.gateway.UpdateEmail(ctx, id, email); err != nil {
		return nil, err
	}
	return s.profiles.Update(ctx, id, clinic.ProfileUpdate{Email: &email})
}

// DeleteAccount removes the profile and the credential record.
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	if err := s.profiles.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.gateway.Delete(ctx, id); err != nil && !errors.Is(err, identity.ErrNotFound) {
		return err
	}
	return nil
}
