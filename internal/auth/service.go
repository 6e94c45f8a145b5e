// Package auth holds the email/password account flow: signup, email
// verification, login, password reset and the current-user lookup. It talks
// to the user store and the mail notifier through interfaces and knows
// nothing about HTTP.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tazhibayda/authflow/internal/domain"
	"github.com/tazhibayda/authflow/internal/helper"
	"github.com/tazhibayda/authflow/internal/log"
	"github.com/tazhibayda/authflow/internal/mail"
	"github.com/tazhibayda/authflow/internal/metrics"
	"github.com/tazhibayda/authflow/internal/repo"
	"github.com/tazhibayda/authflow/internal/security"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Store is the slice of the user repository the flow needs. Lookups return
// repo.ErrNotFound when nothing matches; CreateUser returns
// repo.ErrEmailExists on a duplicate email and repo.ErrCodeTaken when the
// verification code is already pending for someone else.
type Store interface {
	CreateUser(ctx context.Context, u *domain.User) error
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	ConsumeVerificationToken(ctx context.Context, code string, now time.Time) (*domain.User, error)
	SetResetToken(ctx context.Context, id primitive.ObjectID, token string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) (*domain.User, error)
	SetLastLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error
}

type SessionIssuer interface {
	Issue(userID string) (string, error)
}

type Service struct {
	store     Store
	mail      mail.Notifier
	sessions  SessionIssuer
	clientURL string

	now           func() time.Time
	newCode       func() (string, error)
	newResetToken func() (string, error)
}

func NewService(store Store, notifier mail.Notifier, sessions SessionIssuer, clientURL string) *Service {
	return &Service{
		store:         store,
		mail:          notifier,
		sessions:      sessions,
		clientURL:     strings.TrimRight(clientURL, "/"),
		now:           time.Now,
		newCode:       security.NewVerificationCode,
		newResetToken: security.NewResetToken,
	}
}

// Session pairs a user view with the freshly signed session credential.
type Session[U any] struct {
	User  U
	Token string
}

// Signup creates an unverified account and mails the verification code.
//
// When the user was stored but the mail could not be handed off, Signup
// returns both the session and the error: the account stays.
func (s *Service) Signup(ctx context.Context, name, email, password string) (res *Session[*domain.User], err error) {
	defer observe("signup", &err)

	name, email = strings.TrimSpace(name), normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, ErrMissingFields
	}
	if len(password) > security.MaxPasswordBytes {
		return nil, ErrPasswordTooLong
	}

	switch _, err := s.store.FindUserByEmail(ctx, email); {
	case err == nil:
		return nil, ErrEmailTaken
	case !errors.Is(err, repo.ErrNotFound):
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, code, err := s.createPending(ctx, name, email, hash)
	if err != nil {
		return nil, err
	}

	tok, err := s.sessions.Issue(u.ID.Hex())
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	res = &Session[*domain.User]{User: u, Token: tok}
	log.FromContext(ctx).Info("user signed up",
		zap.String("user_id", u.ID.Hex()), zap.String("email", helper.Hash8(email)))

	if err := s.mail.SendVerification(ctx, u.Email, code); err != nil {
		return res, fmt.Errorf("send verification email: %w", err)
	}
	return res, nil
}

// codeAttempts bounds how often Signup draws a new verification code when the
// drawn one is already pending for another user.
const codeAttempts = 5

func (s *Service) createPending(ctx context.Context, name, email, hash string) (*domain.User, string, error) {
	for attempt := 1; ; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, "", fmt.Errorf("verification code: %w", err)
		}
		exp := s.now().Add(domain.VerificationTTL)
		u := &domain.User{
			Name:                       name,
			Email:                      email,
			PasswordHash:               hash,
			VerificationToken:          code,
			VerificationTokenExpiresAt: &exp,
		}
		err = s.store.CreateUser(ctx, u)
		switch {
		case err == nil:
			return u, code, nil
		case errors.Is(err, repo.ErrEmailExists):
			return nil, "", ErrEmailTaken
		case errors.Is(err, repo.ErrCodeTaken) && attempt < codeAttempts:
			continue
		default:
			return nil, "", fmt.Errorf("create user: %w", err)
		}
	}
}

// VerifyEmail consumes a live verification code and sends the welcome mail.
func (s *Service) VerifyEmail(ctx context.Context, code string) (u *domain.User, err error) {
	defer observe("verify_email", &err)

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrMissingFields
	}
	u, err = s.store.ConsumeVerificationToken(ctx, code, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidVerificationCode
	}
	if err != nil {
		return nil, fmt.Errorf("consume verification code: %w", err)
	}
	log.FromContext(ctx).Info("email verified", zap.String("user_id", u.ID.Hex()))

	if err := s.mail.SendWelcome(ctx, u.Email, u.Name); err != nil {
		return u, fmt.Errorf("send welcome email: %w", err)
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (res *Session[domain.LoginUser], err error) {
	defer observe("login", &err)

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}
	u, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrEmailNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	if !security.CheckPassword(u.PasswordHash, password) {
		return nil, ErrIncorrectPassword
	}

	tok, err := s.sessions.Issue(u.ID.Hex())
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	now := s.now().UTC()
	if err := s.store.SetLastLogin(ctx, u.ID, now); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	u.LastLogin = &now
	return &Session[domain.LoginUser]{User: u.LoginView(), Token: tok}, nil
}

// ForgotPassword stores a fresh reset token and mails a link carrying it.
// An unknown email is reported as ErrEmailNotFound.
func (s *Service) ForgotPassword(ctx context.Context, email string) (err error) {
	defer observe("forgot_password", &err)

	email = normalizeEmail(email)
	if email == "" {
		return ErrMissingFields
	}
	u, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrEmailNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup email: %w", err)
	}

	tok, err := s.newResetToken()
	if err != nil {
		return fmt.Errorf("reset token: %w", err)
	}
	if err := s.store.SetResetToken(ctx, u.ID, tok, s.now().Add(domain.ResetTTL)); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	if err := s.mail.SendResetRequest(ctx, u.Email, s.ResetLink(tok)); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

func (s *Service) ResetLink(token string) string {
	return s.clientURL + "/reset-password/" + token
}

func (s *Service) ResetPassword(ctx context.Context, token, password string) (err error) {
	defer observe("reset_password", &err)

	if token == "" || password == "" {
		return ErrMissingFields
	}
	if len(password) > security.MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u, err := s.store.ConsumeResetToken(ctx, token, hash, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	log.FromContext(ctx).Info("password reset", zap.String("user_id", u.ID.Hex()))

	if err := s.mail.SendResetSuccess(ctx, u.Email); err != nil {
		return fmt.Errorf("send reset success email: %w", err)
	}
	return nil
}

// CheckAuth loads the user named by an already verified session.
func (s *Service) CheckAuth(ctx context.Context, userID string) (u *domain.User, err error) {
	defer observe("check_auth", &err)

	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrInvalidUserID
	}
	u, err = s.store.FindUserByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func observe(op string, err *error) {
	outcome := "ok"
	switch {
	case *err == nil:
	case IsClientError(*err):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	metrics.AuthOps.WithLabelValues(op, outcome).Inc()
}
