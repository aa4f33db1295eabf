// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LoginStatus is the reported outcome of a login attempt.
type LoginStatus int

// Login outcomes.
const (
	LoginInvalidCredentials LoginStatus = iota
	LoginSucceeded
)

// String returns the metric/log label for the status.
func (s LoginStatus) String() string {
	if s == LoginSucceeded {
		return "success"
	}
	return "invalid_credentials"
}

// LoginResult describes a login attempt and the state changes the caller
// must apply. On LoginInvalidCredentials every other field is zero.
type LoginResult struct {
	Status LoginStatus
	User   *User

	// Remember is the cookie pair to set when remember-me was requested.
	Remember *RememberCookie

	// ForgetCookie asks the caller to delete the remember cookie pair.
	ForgetCookie bool
}

// LogoutResult describes the state changes the caller must apply on logout.
// It is zero when nobody was logged in.
type LogoutResult struct {
	ClearSession bool
	ForgetCookie bool
}

// Service handles explicit login and logout actions.
type Service struct {
	creds  *CredentialStore
	logger *slog.Logger
	tracer trace.Tracer
}

// NewAuthService creates a new Service that logs to slog.Default().
func NewAuthService(creds *CredentialStore) (*Service, error) {
	return NewAuthServiceWithLogger(creds, slog.Default())
}

// NewAuthServiceWithLogger creates a new Service with a custom logger.
func NewAuthServiceWithLogger(creds *CredentialStore, logger *slog.Logger) (*Service, error) {
	if creds == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("credential store is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}
	return &Service{
		creds:  creds,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// AttemptLogin verifies an email and password. Invalid credentials are a
// normal result and never an error; the result does not reveal which of the
// two was wrong. Errors are record store failures.
func (s *Service) AttemptLogin(ctx context.Context, email, password string, remember bool) (LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.AttemptLogin",
		trace.WithAttributes(attribute.Bool("auth.remember", remember)))
	defer span.End()

	result, err := s.attemptLogin(ctx, email, password, remember)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return LoginResult{}, err
	}
	span.SetAttributes(attribute.String("auth.result", result.Status.String()))
	return result, nil
}

func (s *Service) attemptLogin(ctx context.Context, email, password string, remember bool) (LoginResult, error) {
	user, err := s.creds.FindByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, err
	}

	if user == nil {
		s.creds.verifyDummy(password)
		s.logger.InfoContext(ctx, "login rejected", "reason", "invalid_credentials")
		return LoginResult{Status: LoginInvalidCredentials}, nil
	}
	if !s.creds.VerifyPassword(ctx, user, password) {
		s.logger.InfoContext(ctx, "login rejected", "reason", "invalid_credentials")
		return LoginResult{Status: LoginInvalidCredentials}, nil
	}

	s.creds.upgradePassword(ctx, user, password)

	result := LoginResult{Status: LoginSucceeded, User: user}
	if remember {
		token, err := s.creds.GenerateRememberToken()
		if err != nil {
			return LoginResult{}, err
		}
		if err := s.creds.SetRememberToken(ctx, user, token); err != nil {
			return LoginResult{}, err
		}
		result.Remember = &RememberCookie{UserID: user.ID.String(), Token: token}
	} else {
		if err := s.creds.ClearRememberToken(ctx, user); err != nil {
			return LoginResult{}, err
		}
		result.ForgetCookie = true
	}

	s.logger.InfoContext(ctx, "login succeeded", "user_id", user.ID.String(), "remember", remember)
	return result, nil
}

// LogOut tears down the persistent login of the current user. A nil user is
// a no-op success.
func (s *Service) LogOut(ctx context.Context, current *User) (LogoutResult, error) {
	if current == nil {
		return LogoutResult{}, nil
	}

	ctx, span := s.tracer.Start(ctx, "auth.LogOut")
	defer span.End()

	if err := s.creds.ClearRememberToken(ctx, current); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "logout failed")
		return LogoutResult{}, err
	}

	s.logger.InfoContext(ctx, "logged out", "user_id", current.ID.String())
	return LogoutResult{ClearSession: true, ForgetCookie: true}, nil
}
