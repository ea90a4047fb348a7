package handlers

import (
	"errors"
	"fmt"
	"log"

	"savefi/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// AuthHandler handles HTTP requests for the account workflow.
type AuthHandler struct {
	authService *services.AuthService
	validate    *validator.Validate
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validate:    validator.New(),
	}
}

// RegisterRoutes registers the auth routes with the Fiber app.
// authRequired guards the profile-completion route.
func (h *AuthHandler) RegisterRoutes(router fiber.Router, authRequired fiber.Handler) {
	router.Post("/register", h.HandleRegister)
	router.Post("/login", h.HandleLogin)
	router.Post("/verify-email", h.HandleVerifyEmail)
	router.Post("/resend-otp", h.HandleResendOTP)
	router.Post("/forgot-password", h.HandleForgotPassword)
	router.Post("/reset-password", h.HandleResetPassword)
	router.Post("/complete-profile", authRequired, h.HandleCompleteProfile)
}

// RegisterRequest represents the request body for registration.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginRequest represents the request body for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// VerifyEmailRequest represents the request body for email verification.
type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

// EmailRequest represents the request body for resend-otp and forgot-password.
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest represents the request body for password reset.
type ResetPasswordRequest struct {
	Email           string `json:"email" validate:"required,email"`
	OTP             string `json:"otp" validate:"required,len=6,numeric"`
	NewPassword     string `json:"newPassword" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// CompleteProfileRequest represents the request body for profile completion.
type CompleteProfileRequest struct {
	FirstName  string `json:"firstName" validate:"required,max=100"`
	LastName   string `json:"lastName" validate:"required,max=100"`
	ReferredBy string `json:"referredBy" validate:"omitempty,max=16"`
}

// HandleRegister handles new user registration.
func (h *AuthHandler) HandleRegister(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	user, err := h.authService.Register(req.Username, req.Email, req.Password)
	if err != nil {
		return h.mapServiceError(c, "register", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Registration successful. OTP sent to email.",
		"user":    user,
	})
}

// HandleLogin handles user login and issues a session token.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	token, user, err := h.authService.Login(req.Email, req.Password)
	if err != nil {
		return h.mapServiceError(c, "login", err)
	}

	return c.JSON(fiber.Map{
		"message":             "Login successful",
		"token":               token,
		"hasCompletedProfile": user.HasCompletedProfile,
	})
}

// HandleVerifyEmail marks an account verified given a valid OTP.
func (h *AuthHandler) HandleVerifyEmail(c *fiber.Ctx) error {
	var req VerifyEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	if err := h.authService.VerifyEmail(req.Email, req.OTP); err != nil {
		return h.mapServiceError(c, "verify-email", err)
	}

	return c.JSON(fiber.Map{
		"message": "Email verified successfully",
	})
}

// HandleResendOTP issues and emails a fresh OTP.
func (h *AuthHandler) HandleResendOTP(c *fiber.Ctx) error {
	var req EmailRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	if err := h.authService.ResendOTP(req.Email); err != nil {
		return h.mapServiceError(c, "resend-otp", err)
	}

	return c.JSON(fiber.Map{
		"message": "OTP resent",
	})
}

// HandleForgotPassword starts the password reset flow.
func (h *AuthHandler) HandleForgotPassword(c *fiber.Ctx) error {
	var req EmailRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	if err := h.authService.ForgotPassword(req.Email); err != nil {
		return h.mapServiceError(c, "forgot-password", err)
	}

	return c.JSON(fiber.Map{
		"message": "OTP sent to email",
	})
}

// HandleResetPassword replaces the password given a valid OTP.
func (h *AuthHandler) HandleResetPassword(c *fiber.Ctx) error {
	var req ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	if err := h.authService.ResetPassword(req.Email, req.OTP, req.NewPassword, req.ConfirmPassword); err != nil {
		return h.mapServiceError(c, "reset-password", err)
	}

	return c.JSON(fiber.Map{
		"message": "Password reset successful",
	})
}

// HandleCompleteProfile fills in profile details for the authenticated user.
func (h *AuthHandler) HandleCompleteProfile(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Unauthorized",
		})
	}

	var req CompleteProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	user, err := h.authService.CompleteProfile(userID, req.FirstName, req.LastName, req.ReferredBy)
	if err != nil {
		return h.mapServiceError(c, "complete-profile", err)
	}

	return c.JSON(fiber.Map{
		"message": "Profile completed",
		"user":    user,
	})
}

// mapServiceError translates service failures to HTTP statuses. Unrecognized
// errors collapse to a generic 500 with no internal detail.
func (h *AuthHandler) mapServiceError(c *fiber.Ctx, op string, err error) error {
	switch {
	case errors.Is(err, services.ErrUsernameTaken),
		errors.Is(err, services.ErrEmailTaken),
		errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrNotVerified),
		errors.Is(err, services.ErrInvalidOrExpiredOTP),
		errors.Is(err, services.ErrPasswordTooShort),
		errors.Is(err, services.ErrPasswordMismatch),
		errors.Is(err, services.ErrProfileCompleted):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": capitalized(err.Error()),
		})
	case errors.Is(err, services.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "User not found",
		})
	default:
		log.Printf("%s error: %v", op, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Server error",
		})
	}
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": message,
	})
}

func validationFailed(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		errorMessages := make(map[string]string)
		for _, e := range validationErrors {
			errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  errorMessages,
		})
	}
	return badRequest(c, "Validation failed")
}

// capitalized uppercases the first byte of a service error message so
// responses read like the rest of the API surface.
func capitalized(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
