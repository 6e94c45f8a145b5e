package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tazhibayda/authflow/internal/mail"
	"github.com/tazhibayda/authflow/internal/queue"
	"github.com/tazhibayda/authflow/internal/security"
	"github.com/tazhibayda/authflow/internal/testutil"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	svc   *Service
	store *testutil.MemStore
	box   *testutil.Mailbox
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	security.Cost = bcrypt.MinCost
	f := &fixture{
		store: testutil.NewMemStore(),
		box:   &testutil.Mailbox{},
		now:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store, mail.NewNotifier(f.box),
		security.NewHMACSessions("test-secret", time.Hour), "http://client.test/")
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) signup(t *testing.T, name, email, pw string) string {
	t.Helper()
	_, err := f.svc.Signup(context.Background(), name, email, pw)
	require.NoError(t, err)
	ev, ok := f.box.Last(queue.MailVerification)
	require.True(t, ok)
	return ev.Code
}

func TestSignup_CreatesUnverifiedUserAndMailsCode(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Signup(context.Background(), " Alice ", "A@X.com", "Secret1")
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	assert.Equal(t, "Alice", res.User.Name)
	assert.Equal(t, "a@x.com", res.User.Email)
	assert.False(t, res.User.IsVerified)

	stored, ok := f.store.Get("a@x.com")
	require.True(t, ok)
	assert.NotEqual(t, "Secret1", stored.PasswordHash)
	require.NotNil(t, stored.VerificationTokenExpiresAt)
	assert.Equal(t, f.now.Add(24*time.Hour), *stored.VerificationTokenExpiresAt)

	ev, ok := f.box.Last(queue.MailVerification)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", ev.To)
	assert.Equal(t, stored.VerificationToken, ev.Code)
}

func TestSignup_DuplicateEmailIsConflict(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "Alice", "a@x.com", "Secret1")

	_, err := f.svc.Signup(context.Background(), "Other", "a@x.com", "Other1")
	require.ErrorIs(t, err, ErrEmailTaken)
	assert.Equal(t, 1, f.store.Count())
}

func TestSignup_MissingFieldsPersistNothing(t *testing.T) {
	f := newFixture(t)
	for _, in := range [][3]string{
		{"", "a@x.com", "pw"},
		{"Alice", "", "pw"},
		{"Alice", "a@x.com", ""},
		{"   ", "a@x.com", "pw"},
	} {
		_, err := f.svc.Signup(context.Background(), in[0], in[1], in[2])
		require.ErrorIs(t, err, ErrMissingFields, in)
	}
	assert.Equal(t, 0, f.store.Count())
	assert.Equal(t, 0, f.box.Count(queue.MailVerification))
}

func TestSignup_MailFailureKeepsUser(t *testing.T) {
	f := newFixture(t)
	f.box.Err = errors.New("broker down")

	res, err := f.svc.Signup(context.Background(), "Alice", "a@x.com", "Secret1")
	require.Error(t, err)
	assert.False(t, IsClientError(err))
	require.NotNil(t, res)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, 1, f.store.Count())
}

func TestSignup_StoreFailureIsServerError(t *testing.T) {
	f := newFixture(t)
	f.store.Err = errors.New("mongo unreachable")

	_, err := f.svc.Signup(context.Background(), "Alice", "a@x.com", "Secret1")
	require.Error(t, err)
	assert.False(t, IsClientError(err))
}

func codes(seq ...string) func() (string, error) {
	return func() (string, error) {
		c := seq[0]
		if len(seq) > 1 {
			seq = seq[1:]
		}
		return c, nil
	}
}

func TestSignup_PendingCodeCollisionDrawsAgain(t *testing.T) {
	f := newFixture(t)
	f.svc.newCode = codes("123456", "123456", "654321")
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, "Victim", "victim@x.com", "Secret1")
	require.NoError(t, err)
	_, err = f.svc.Signup(ctx, "Alice", "a@x.com", "Secret1")
	require.NoError(t, err)

	alice, _ := f.store.Get("a@x.com")
	assert.Equal(t, "654321", alice.VerificationToken)
	ev, _ := f.box.Last(queue.MailVerification)
	assert.Equal(t, "654321", ev.Code)

	u, err := f.svc.VerifyEmail(ctx, ev.Code)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", u.Email)

	victim, _ := f.store.Get("victim@x.com")
	assert.False(t, victim.IsVerified)
	assert.Equal(t, "123456", victim.VerificationToken)
}

func TestSignup_GivesUpWhenEveryCodeIsTaken(t *testing.T) {
	f := newFixture(t)
	f.svc.newCode = codes("123456")
	_, err := f.svc.Signup(context.Background(), "Victim", "victim@x.com", "Secret1")
	require.NoError(t, err)

	_, err = f.svc.Signup(context.Background(), "Alice", "a@x.com", "Secret1")
	require.Error(t, err)
	assert.False(t, IsClientError(err))
	assert.Equal(t, 1, f.store.Count())
}

func TestPasswordLongerThanBcryptLimit(t *testing.T) {
	f := newFixture(t)
	long := strings.Repeat("p", security.MaxPasswordBytes+1)

	_, err := f.svc.Signup(context.Background(), "Alice", "a@x.com", long)
	require.ErrorIs(t, err, ErrPasswordTooLong)
	assert.Equal(t, 0, f.store.Count())

	_, err = f.svc.Signup(context.Background(), "Alice", "a@x.com", strings.Repeat("p", security.MaxPasswordBytes))
	require.NoError(t, err)

	require.NoError(t, f.svc.ForgotPassword(context.Background(), "a@x.com"))
	stored, _ := f.store.Get("a@x.com")
	err = f.svc.ResetPassword(context.Background(), stored.ResetPasswordToken, long)
	require.ErrorIs(t, err, ErrPasswordTooLong)

	stored, _ = f.store.Get("a@x.com")
	assert.NotEmpty(t, stored.ResetPasswordToken, "rejected reset must not burn the token")
}

func TestVerifyEmail_SingleUse(t *testing.T) {
	f := newFixture(t)
	code := f.signup(t, "Alice", "a@x.com", "Secret1")

	u, err := f.svc.VerifyEmail(context.Background(), code)
	require.NoError(t, err)
	assert.True(t, u.IsVerified)
	assert.Empty(t, u.VerificationToken)
	assert.Nil(t, u.VerificationTokenExpiresAt)

	welcome, ok := f.box.Last(queue.MailWelcome)
	require.True(t, ok)
	assert.Equal(t, "Alice", welcome.Name)

	_, err = f.svc.VerifyEmail(context.Background(), code)
	require.ErrorIs(t, err, ErrInvalidVerificationCode)
}

func TestVerifyEmail_ExpiryIsStrict(t *testing.T) {
	f := newFixture(t)
	code := f.signup(t, "Alice", "a@x.com", "Secret1")

	f.now = f.now.Add(24 * time.Hour)
	_, err := f.svc.VerifyEmail(context.Background(), code)
	require.ErrorIs(t, err, ErrInvalidVerificationCode)

	f.now = f.now.Add(-time.Nanosecond)
	_, err = f.svc.VerifyEmail(context.Background(), code)
	require.NoError(t, err)
}

func TestVerifyEmail_WrongOrEmptyCode(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "Alice", "a@x.com", "Secret1")

	_, err := f.svc.VerifyEmail(context.Background(), "000000")
	require.ErrorIs(t, err, ErrInvalidVerificationCode)
	_, err = f.svc.VerifyEmail(context.Background(), "")
	require.ErrorIs(t, err, ErrMissingFields)

	u, _ := f.store.Get("a@x.com")
	assert.False(t, u.IsVerified)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "Alice", "a@x.com", "Secret1")

	res, err := f.svc.Login(context.Background(), "a@x.com", "Secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "Alice", res.User.Name)
	require.NotNil(t, res.User.LastLogin)
	assert.Equal(t, f.now, *res.User.LastLogin)

	stored, _ := f.store.Get("a@x.com")
	require.NotNil(t, stored.LastLogin)

	_, err = f.svc.Login(context.Background(), "a@x.com", "Wrong")
	require.ErrorIs(t, err, ErrIncorrectPassword)

	_, err = f.svc.Login(context.Background(), "nobody@x.com", "Secret1")
	require.ErrorIs(t, err, ErrEmailNotFound)

	_, err = f.svc.Login(context.Background(), "a@x.com", "")
	require.ErrorIs(t, err, ErrMissingFields)
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "Alice", "a@x.com", "Secret1")

	require.NoError(t, f.svc.ForgotPassword(context.Background(), "a@x.com"))
	stored, _ := f.store.Get("a@x.com")
	require.NotEmpty(t, stored.ResetPasswordToken)
	assert.Equal(t, f.now.Add(time.Hour), *stored.ResetPasswordExpiresAt)

	ev, ok := f.box.Last(queue.MailResetRequest)
	require.True(t, ok)
	assert.Equal(t, "http://client.test/reset-password/"+stored.ResetPasswordToken, ev.Link)
	assert.NotEqual(t, stored.VerificationToken, stored.ResetPasswordToken)

	require.NoError(t, f.svc.ResetPassword(context.Background(), stored.ResetPasswordToken, "NewPass1"))
	assert.Equal(t, 1, f.box.Count(queue.MailResetSuccess))

	_, err := f.svc.Login(context.Background(), "a@x.com", "Secret1")
	require.ErrorIs(t, err, ErrIncorrectPassword)
	_, err = f.svc.Login(context.Background(), "a@x.com", "NewPass1")
	require.NoError(t, err)

	err = f.svc.ResetPassword(context.Background(), stored.ResetPasswordToken, "Again1")
	require.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestResetPassword_Expired(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "Alice", "a@x.com", "Secret1")
	require.NoError(t, f.svc.ForgotPassword(context.Background(), "a@x.com"))
	stored, _ := f.store.Get("a@x.com")

	f.now = f.now.Add(time.Hour)
	err := f.svc.ResetPassword(context.Background(), stored.ResetPasswordToken, "NewPass1")
	require.ErrorIs(t, err, ErrInvalidResetToken)

	_, err = f.svc.Login(context.Background(), "a@x.com", "Secret1")
	require.NoError(t, err)
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	f := newFixture(t)
	err := f.svc.ForgotPassword(context.Background(), "nobody@x.com")
	require.ErrorIs(t, err, ErrEmailNotFound)
	require.ErrorIs(t, f.svc.ForgotPassword(context.Background(), " "), ErrMissingFields)
}

func TestCheckAuth(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "Alice", "a@x.com", "Secret1")
	stored, _ := f.store.Get("a@x.com")

	u, err := f.svc.CheckAuth(context.Background(), stored.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", u.Email)

	_, err = f.svc.CheckAuth(context.Background(), "not-an-object-id")
	require.ErrorIs(t, err, ErrInvalidUserID)

	_, err = f.svc.CheckAuth(context.Background(), strings.Repeat("a", 24))
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestEndToEnd_SignupVerifyLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Signup(ctx, "Alice", "a@x.com", "Secret1")
	require.NoError(t, err)
	assert.False(t, res.User.IsVerified)
	ev, _ := f.box.Last(queue.MailVerification)

	f.now = f.now.Add(23 * time.Hour)
	u, err := f.svc.VerifyEmail(ctx, ev.Code)
	require.NoError(t, err)
	assert.True(t, u.IsVerified)

	login, err := f.svc.Login(ctx, "a@x.com", "Secret1")
	require.NoError(t, err)
	assert.NotNil(t, login.User.LastLogin)

	_, err = f.svc.Login(ctx, "a@x.com", "Wrong")
	require.ErrorIs(t, err, ErrIncorrectPassword)

	stored, _ := f.store.Get("a@x.com")
	assert.True(t, stored.IsVerified)
	assert.Empty(t, stored.VerificationToken)
}
