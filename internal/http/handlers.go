package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/tazhibayda/authflow/internal/auth"
	"github.com/tazhibayda/authflow/internal/log"
	"github.com/tazhibayda/authflow/internal/security"
	"go.uber.org/zap"
)

const cookieName = "token"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Auth     *auth.Service
	Sessions *security.Sessions
	Store    Pinger
	// SecureCookie sets the Secure flag on the session cookie (production).
	SecureCookie bool
	// TraceService enables Datadog request spans under this service name.
	TraceService string
}

func NewHandler(svc *auth.Service, sessions *security.Sessions, store Pinger, secureCookie bool) *Handler {
	return &Handler{Auth: svc, Sessions: sessions, Store: store, SecureCookie: secureCookie}
}

// Response is the body of every /api/auth reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	User    any    `json:"user,omitempty"`
}

type signupReq struct {
	Name     string `json:"name"     binding:"required"`
	Email    string `json:"email"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Signup godoc
// @Summary Sign up
// @Tags auth
// @Accept json
// @Produce json
// @Param payload body signupReq true "name, email, password"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /api/auth/signup [post]
func (h *Handler) Signup(c *gin.Context) {
	var in signupReq
	if !h.bind(c, &in) {
		return
	}
	res, err := h.Auth.Signup(c.Request.Context(), in.Name, in.Email, in.Password)
	if res != nil {
		h.setSession(c, res.Token)
	}
	if err != nil {
		h.fail(c, "signup", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Message: "User created successfully", User: res.User})
}

type verifyEmailReq struct {
	Code string `json:"code" binding:"required"`
}

// VerifyEmail godoc
// @Summary Verify email with the mailed code
// @Tags auth
// @Accept json
// @Produce json
// @Param payload body verifyEmailReq true "code"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /api/auth/verify-email [post]
func (h *Handler) VerifyEmail(c *gin.Context) {
	var in verifyEmailReq
	if !h.bind(c, &in) {
		return
	}
	u, err := h.Auth.VerifyEmail(c.Request.Context(), in.Code)
	if err != nil {
		h.fail(c, "verify_email", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "Email verified successfully", User: u})
}

type loginReq struct {
	Email    string `json:"email"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login godoc
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param payload body loginReq true "email, password"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Failure 500 {object} Response
// @Router /api/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var in loginReq
	if !h.bind(c, &in) {
		return
	}
	res, err := h.Auth.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		h.fail(c, "login", err)
		return
	}
	h.setSession(c, res.Token)
	c.JSON(http.StatusOK, Response{Success: true, Message: "Logged in successfully", User: res.User})
}

// Logout godoc
// @Summary Log out (clears the session cookie)
// @Tags auth
// @Produce json
// @Success 200 {object} Response
// @Router /api/auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(cookieName, "", -1, "/", "", h.SecureCookie, true)
	c.JSON(http.StatusOK, Response{Success: true, Message: "Logged out successfully"})
}

type forgotPasswordReq struct {
	Email string `json:"email" binding:"required"`
}

// ForgotPassword godoc
// @Summary Request a password reset link
// @Tags auth
// @Accept json
// @Produce json
// @Param payload body forgotPasswordReq true "email"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Failure 500 {object} Response
// @Router /api/auth/forgot-password [post]
func (h *Handler) ForgotPassword(c *gin.Context) {
	var in forgotPasswordReq
	if !h.bind(c, &in) {
		return
	}
	if err := h.Auth.ForgotPassword(c.Request.Context(), in.Email); err != nil {
		h.fail(c, "forgot_password", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "Password reset link sent to your email"})
}

type resetPasswordReq struct {
	Password string `json:"password" binding:"required"`
}

// ResetPassword godoc
// @Summary Set a new password with a reset token
// @Tags auth
// @Accept json
// @Produce json
// @Param token path string true "reset token"
// @Param payload body resetPasswordReq true "password"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Failure 500 {object} Response
// @Router /api/auth/reset-password/{token} [post]
func (h *Handler) ResetPassword(c *gin.Context) {
	var in resetPasswordReq
	if !h.bind(c, &in) {
		return
	}
	if err := h.Auth.ResetPassword(c.Request.Context(), c.Param("token"), in.Password); err != nil {
		h.fail(c, "reset_password", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "Password reset successful"})
}

// CheckAuth godoc
// @Summary Current user from the session cookie
// @Tags auth
// @Produce json
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Failure 500 {object} Response
// @Router /api/auth/check-auth [get]
func (h *Handler) CheckAuth(c *gin.Context) {
	u, err := h.Auth.CheckAuth(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		h.fail(c, "check_auth", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, User: u})
}

func (h *Handler) Healthz(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) JWKS(c *gin.Context) {
	set, ok := h.Sessions.JWKS()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "sessions are not signed with a published key"})
		return
	}
	c.JSON(http.StatusOK, set)
}

func (h *Handler) setSession(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(cookieName, token, int(h.Sessions.TTL().Seconds()), "/", "", h.SecureCookie, true)
}

func (h *Handler) bind(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) || errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, Response{Message: "All fields are required"})
	} else {
		c.JSON(http.StatusBadRequest, Response{Message: "Invalid request body"})
	}
	return false
}

var clientFailures = []struct {
	err    error
	status int
	msg    string
}{
	{auth.ErrMissingFields, http.StatusBadRequest, "All fields are required"},
	{auth.ErrEmailTaken, http.StatusBadRequest, "Email already exists"},
	{auth.ErrInvalidVerificationCode, http.StatusBadRequest, "Invalid or expired verification code"},
	{auth.ErrInvalidUserID, http.StatusBadRequest, "Invalid user id"},
	{auth.ErrPasswordTooLong, http.StatusBadRequest, "Password must be at most 72 bytes"},
	{auth.ErrEmailNotFound, http.StatusUnauthorized, "Email not found"},
	{auth.ErrIncorrectPassword, http.StatusUnauthorized, "Incorrect password"},
	{auth.ErrInvalidResetToken, http.StatusUnauthorized, "Invalid or expired reset token"},
	{auth.ErrUserNotFound, http.StatusUnauthorized, "User not found"},
}

// fail maps service errors to the response: sentinel client errors keep their
// status and message, everything else is a logged 500.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	for _, f := range clientFailures {
		if errors.Is(err, f.err) {
			c.JSON(f.status, Response{Message: f.msg})
			return
		}
	}
	log.FromContext(c.Request.Context()).Error("auth operation failed",
		zap.String("op", op), zap.String("request_id", c.GetString(requestIDKey)), zap.Error(err))
	c.JSON(http.StatusInternalServerError, Response{Message: "Internal server error"})
}
