package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"savefi/internal/config"
	"savefi/internal/handlers"
	"savefi/internal/middleware"
	"savefi/internal/models"
	"savefi/internal/repositories"
	"savefi/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var otpPattern = regexp.MustCompile(`\b(\d{6})\b`)

// captureMailer records outgoing mail instead of talking to an SMTP relay.
type captureMailer struct {
	mu   sync.Mutex
	sent []capturedMail
}

type capturedMail struct {
	To      string
	Subject string
	Body    string
}

func (m *captureMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, capturedMail{To: to, Subject: subject, Body: body})
	return nil
}

// lastOTP extracts the code from the most recent mail sent to the address.
func (m *captureMailer) lastOTP(t *testing.T, to string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to {
			match := otpPattern.FindStringSubmatch(m.sent[i].Body)
			if match == nil {
				t.Fatalf("no OTP found in mail to %s: %q", to, m.sent[i].Body)
			}
			return match[1]
		}
	}
	t.Fatalf("no mail sent to %s", to)
	return ""
}

// setupApp sets up a Fiber app for testing with an in-memory SQLite database
// and the full handler/service/repository stack.
func setupApp(t *testing.T) (*fiber.App, *gorm.DB, *captureMailer, *config.Config) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to connect to in-memory database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	cfg := &config.Config{
		BasePath:  "/api/auth",
		JWTSecret: "test_jwt_secret",
		JWTExpiry: 168 * time.Hour,
	}

	mailer := &captureMailer{}
	userRepo := repositories.NewGORMUserRepository(db)
	otpService := services.NewOTPService(userRepo)
	authService := services.NewAuthService(userRepo, otpService, mailer, nil, cfg)
	authHandler := handlers.NewAuthHandler(authService)

	app := fiber.New()
	authRoutes := app.Group(cfg.BasePath)
	authHandler.RegisterRoutes(authRoutes, middleware.AuthRequired(authService))

	return app, db, mailer, cfg
}

func postJSON(t *testing.T, app *fiber.App, path string, body map[string]interface{}, headers ...map[string]string) (int, map[string]interface{}) {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for _, h := range headers {
		for k, v := range h {
			req.Header.Set(k, v)
		}
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request to %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("failed to decode response from %s: %v", path, err)
	}
	return resp.StatusCode, decoded
}

func wrongCode(code string) string {
	if code == "111111" {
		return "222222"
	}
	return "111111"
}

func TestRegisterVerifyLoginScenario(t *testing.T) {
	app, _, mailer, _ := setupApp(t)

	// Register.
	status, body := postJSON(t, app, "/api/auth/register", map[string]interface{}{
		"username": "alice",
		"email":    "a@x.com",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Registration successful. OTP sent to email.", body["message"])

	// The returned record never carries the password hash or the OTP.
	user, ok := body["user"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "alice", user["username"])
	assert.NotContains(t, user, "password")
	assert.NotContains(t, user, "otp")

	code := mailer.lastOTP(t, "a@x.com")

	// Wrong OTP is rejected with the uniform message.
	status, body = postJSON(t, app, "/api/auth/verify-email", map[string]interface{}{
		"email": "a@x.com",
		"otp":   wrongCode(code),
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid or expired OTP", body["message"])

	// Correct OTP verifies the account.
	status, body = postJSON(t, app, "/api/auth/verify-email", map[string]interface{}{
		"email": "a@x.com",
		"otp":   code,
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Email verified successfully", body["message"])

	// The code is consumed; replaying it fails.
	status, _ = postJSON(t, app, "/api/auth/verify-email", map[string]interface{}{
		"email": "a@x.com",
		"otp":   code,
	})
	assert.Equal(t, http.StatusBadRequest, status)

	// Login issues a session token.
	status, body = postJSON(t, app, "/api/auth/login", map[string]interface{}{
		"email":    "a@x.com",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, false, body["hasCompletedProfile"])
}

func TestRegisterValidationAndConflicts(t *testing.T) {
	app, _, _, _ := setupApp(t)

	// Missing fields.
	status, body := postJSON(t, app, "/api/auth/register", map[string]interface{}{
		"username": "bob",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Validation failed", body["message"])

	// Short password.
	status, body = postJSON(t, app, "/api/auth/register", map[string]interface{}{
		"username": "bob",
		"email":    "b@x.com",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Password must be at least 6 characters long", body["message"])

	// First registration succeeds, the duplicate conflicts.
	status, _ = postJSON(t, app, "/api/auth/register", map[string]interface{}{
		"username": "bob",
		"email":    "b@x.com",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusCreated, status)

	status, body = postJSON(t, app, "/api/auth/register", map[string]interface{}{
		"username": "bob2",
		"email":    "b@x.com",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Email already exists", body["message"])
}

func TestLoginFailures(t *testing.T) {
	app, _, _, _ := setupApp(t)

	postJSON(t, app, "/api/auth/register", map[string]interface{}{
		"username": "carol",
		"email":    "c@x.com",
		"password": "secret1",
	})

	// Wrong password and unknown email share the same response.
	status, body := postJSON(t, app, "/api/auth/login", map[string]interface{}{
		"email":    "c@x.com",
		"password": "wrongpass",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid credentials", body["message"])

	status, body = postJSON(t, app, "/api/auth/login", map[string]interface{}{
		"email":    "nobody@x.com",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid credentials", body["message"])
}

func TestResendOTP(t *testing.T) {
	app, _, mailer, _ := setupApp(t)

	status, body := postJSON(t, app, "/api/auth/resend-otp", map[string]interface{}{
		"email": "missing@x.com",
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "User not found", body["message"])

	postJSON(t, app, "/api/auth/register", map[string]interface{}{
		"username": "dave",
		"email":    "d@x.com",
		"password": "secret1",
	})
	first := mailer.lastOTP(t, "d@x.com")

	status, body = postJSON(t, app, "/api/auth/resend-otp", map[string]interface{}{
		"email": "d@x.com",
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OTP resent", body["message"])

	second := mailer.lastOTP(t, "d@x.com")

	// The reissued code is the live one; the first is silently invalid
	// unless the generator happened to repeat it.
	status, _ = postJSON(t, app, "/api/auth/verify-email", map[string]interface{}{
		"email": "d@x.com",
		"otp":   second,
	})
	assert.Equal(t, http.StatusOK, status)
	if first != second {
		status, _ = postJSON(t, app, "/api/auth/verify-email", map[string]interface{}{
			"email": "d@x.com",
			"otp":   first,
		})
		assert.Equal(t, http.StatusBadRequest, status)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	app, db, mailer, _ := setupApp(t)

	postJSON(t, app, "/api/auth/register", map[string]interface{}{
		"username": "erin",
		"email":    "e@x.com",
		"password": "secret1",
	})

	status, body := postJSON(t, app, "/api/auth/forgot-password", map[string]interface{}{
		"email": "e@x.com",
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OTP sent to email", body["message"])

	code := mailer.lastOTP(t, "e@x.com")

	// Mismatched confirmation is rejected before the OTP is checked.
	status, body = postJSON(t, app, "/api/auth/reset-password", map[string]interface{}{
		"email":           "e@x.com",
		"otp":             code,
		"newPassword":     "newsecret",
		"confirmPassword": "different",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Passwords do not match", body["message"])

	status, body = postJSON(t, app, "/api/auth/reset-password", map[string]interface{}{
		"email":           "e@x.com",
		"otp":             code,
		"newPassword":     "newsecret",
		"confirmPassword": "newsecret",
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Password reset successful", body["message"])

	// Old password is dead, new one works.
	status, _ = postJSON(t, app, "/api/auth/login", map[string]interface{}{
		"email":    "e@x.com",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = postJSON(t, app, "/api/auth/login", map[string]interface{}{
		"email":    "e@x.com",
		"password": "newsecret",
	})
	assert.Equal(t, http.StatusOK, status)

	// An expired OTP is indistinguishable from a wrong one.
	postJSON(t, app, "/api/auth/forgot-password", map[string]interface{}{
		"email": "e@x.com",
	})
	expiredCode := mailer.lastOTP(t, "e@x.com")

	past := time.Now().Add(-time.Minute)
	err := db.Model(&models.User{}).Where("email = ?", "e@x.com").Update("otp_expires", past).Error
	assert.NoError(t, err)

	status, body = postJSON(t, app, "/api/auth/reset-password", map[string]interface{}{
		"email":           "e@x.com",
		"otp":             expiredCode,
		"newPassword":     "another1",
		"confirmPassword": "another1",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid or expired OTP", body["message"])
}

func TestCompleteProfile(t *testing.T) {
	app, _, mailer, _ := setupApp(t)

	postJSON(t, app, "/api/auth/register", map[string]interface{}{
		"username": "frank",
		"email":    "f@x.com",
		"password": "secret1",
	})
	code := mailer.lastOTP(t, "f@x.com")
	postJSON(t, app, "/api/auth/verify-email", map[string]interface{}{
		"email": "f@x.com",
		"otp":   code,
	})

	status, body := postJSON(t, app, "/api/auth/login", map[string]interface{}{
		"email":    "f@x.com",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusOK, status)
	token, _ := body["token"].(string)
	assert.NotEmpty(t, token)

	// No token: rejected by the middleware.
	status, body = postJSON(t, app, "/api/auth/complete-profile", map[string]interface{}{
		"firstName": "Frank",
		"lastName":  "Ocean",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Authorization header is required", body["message"])

	// With the session token the profile completes and a referral code is
	// assigned.
	authHeader := map[string]string{"Authorization": fmt.Sprintf("Bearer %s", token)}
	status, body = postJSON(t, app, "/api/auth/complete-profile", map[string]interface{}{
		"firstName": "Frank",
		"lastName":  "Ocean",
	}, authHeader)
	assert.Equal(t, http.StatusOK, status)

	user, ok := body["user"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "Frank", user["firstName"])
	assert.Equal(t, true, user["hasCompletedProfile"])
	referrerCode, _ := user["referrerCode"].(string)
	assert.Len(t, referrerCode, 8)
	assert.NotContains(t, user, "password")

	// The welcome mail went out.
	mailer.mu.Lock()
	lastMail := mailer.sent[len(mailer.sent)-1]
	mailer.mu.Unlock()
	assert.Equal(t, "f@x.com", lastMail.To)
	assert.Contains(t, lastMail.Subject, "referral code")
	assert.Contains(t, lastMail.Body, referrerCode)

	// Completing twice is rejected.
	status, body = postJSON(t, app, "/api/auth/complete-profile", map[string]interface{}{
		"firstName": "Frank",
		"lastName":  "Ocean",
	}, authHeader)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Profile already completed", body["message"])
}
