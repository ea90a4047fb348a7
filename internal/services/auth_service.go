package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"savefi/internal/config"
	"savefi/internal/models"
	"savefi/internal/repositories"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Service-level failures the handlers translate to HTTP statuses.
// Anything else coming out of this package is treated as an internal error.
var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrNotVerified        = errors.New("account is not verified")
	ErrPasswordTooShort   = errors.New("password must be at least 6 characters long")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrProfileCompleted   = errors.New("profile already completed")
)

// Mailer sends a plaintext transactional email.
type Mailer interface {
	Send(to, subject, body string) error
}

// EventPublisher publishes user lifecycle events to the message broker.
type EventPublisher interface {
	PublishUserEvent(event string, payload map[string]interface{}) error
}

// AuthService handles business logic for registration, authentication and
// the OTP verification/reset workflow.
type AuthService struct {
	userRepo repositories.UserRepository
	otp      *OTPService
	mailer   Mailer
	events   EventPublisher
	cfg      *config.Config
}

// NewAuthService creates a new AuthService. events may be nil when no broker
// is configured; publishing is then skipped.
func NewAuthService(
	userRepo repositories.UserRepository,
	otp *OTPService,
	mailer Mailer,
	events EventPublisher,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		otp:      otp,
		mailer:   mailer,
		events:   events,
		cfg:      cfg,
	}
}

// Register creates an unverified user with a fresh OTP and emails the code.
func (s *AuthService) Register(username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))

	if len(password) < 6 {
		return nil, ErrPasswordTooShort
	}

	if existing, err := s.userRepo.GetByUsername(username); err == nil && existing != nil {
		return nil, ErrUsernameTaken
	}
	if existing, err := s.userRepo.GetByEmail(email, false); err == nil && existing != nil {
		return nil, ErrEmailTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	code, err := s.otp.Generate()
	if err != nil {
		return nil, err
	}
	expires := time.Now().Add(OTPTTL)

	user := &models.User{
		Username:   username,
		Email:      email,
		Password:   string(hashedPassword),
		OTP:        &code,
		OTPExpires: &expires,
	}
	if err := s.userRepo.Create(user); err != nil {
		// A concurrent registration can slip past the pre-checks; the unique
		// index is the source of truth.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	if err := s.mailer.Send(
		email,
		"Verify your account",
		fmt.Sprintf("Your OTP is %s. It expires in 10 minutes.", code),
	); err != nil {
		return nil, fmt.Errorf("failed to send verification email: %w", err)
	}

	s.publish("user.registered", user)
	return user, nil
}

// Login authenticates by email and password and issues a session token.
// Bad email and bad password produce the same error.
func (s *AuthService) Login(email, password string) (string, *models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.userRepo.GetByEmail(email, true)
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	if s.cfg.RequireVerifiedLogin && !user.IsVerified {
		return "", nil, ErrNotVerified
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// VerifyEmail marks the account verified if the OTP checks out, consuming it.
func (s *AuthService) VerifyEmail(email, code string) error {
	user, err := s.otp.Validate(strings.TrimSpace(strings.ToLower(email)), code)
	if err != nil {
		return err
	}

	user.IsVerified = true
	if err := s.otp.Consume(user); err != nil {
		return err
	}

	s.publish("user.verified", user)
	return nil
}

// ResendOTP issues a fresh code for an existing account and emails it.
func (s *AuthService) ResendOTP(email string) error {
	return s.reissueOTP(email, "Your new OTP")
}

// ForgotPassword issues a fresh code for the password reset flow and emails it.
func (s *AuthService) ForgotPassword(email string) error {
	return s.reissueOTP(email, "Password Reset OTP")
}

// reissueOTP is the shared resend/forgot path: regenerate the code and expiry
// on the record and mail the new code. Any previously pending code becomes
// invalid without notice.
func (s *AuthService) reissueOTP(email, subject string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.userRepo.GetByEmail(email, true)
	if err != nil {
		return ErrUserNotFound
	}

	code, err := s.otp.Issue(user)
	if err != nil {
		return err
	}

	if err := s.mailer.Send(
		email,
		subject,
		fmt.Sprintf("Your OTP is %s. It expires in 10 minutes.", code),
	); err != nil {
		return fmt.Errorf("failed to send OTP email: %w", err)
	}
	return nil
}

// ResetPassword replaces the password hash after OTP validation, consuming
// the code. The password confirmation is checked before the OTP so a
// mismatch never burns a valid code.
func (s *AuthService) ResetPassword(email, code, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if len(newPassword) < 6 {
		return ErrPasswordTooShort
	}

	user, err := s.otp.Validate(strings.TrimSpace(strings.ToLower(email)), code)
	if err != nil {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = string(hashedPassword)

	if err := s.otp.Consume(user); err != nil {
		return err
	}

	s.publish("user.password_reset", user)
	return nil
}

// CompleteProfile fills in the post-signup profile details, assigns a unique
// referral code and sends the welcome email.
func (s *AuthService) CompleteProfile(userID, firstName, lastName, referredBy string) (*models.User, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	if user.HasCompletedProfile {
		return nil, ErrProfileCompleted
	}

	user.FirstName = strings.TrimSpace(firstName)
	user.LastName = strings.TrimSpace(lastName)
	if rb := strings.TrimSpace(referredBy); rb != "" {
		user.ReferredBy = &rb
	}

	code, err := s.generateReferralCode()
	if err != nil {
		return nil, err
	}
	user.ReferrerCode = &code
	user.HasCompletedProfile = true

	if err := s.userRepo.Save(user); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}

	subject, body := welcomeReferralEmail(user.Username, code)
	if err := s.mailer.Send(user.Email, subject, body); err != nil {
		// The profile is already saved; a mail failure should not undo it.
		log.Printf("Failed to send welcome email to %s: %v", user.Email, err)
	}

	return user, nil
}

// ValidateToken parses and validates a session token, returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// issueToken signs a session token carrying the user ID, valid for the
// configured expiry (7 days by default).
func (s *AuthService) issueToken(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  userID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(s.cfg.JWTExpiry).Unix(),
	})

	tokenString, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// generateReferralCode derives a short uppercase code from a fresh UUID and
// retries on the rare collision with an existing user.
func (s *AuthService) generateReferralCode() (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code := strings.ToUpper(uuid.New().String()[:8])
		if _, err := s.userRepo.GetByReferrerCode(code); err != nil {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique referral code")
}

// publish sends a user lifecycle event to the broker, if one is configured.
// Publishing is best-effort and never fails the request.
func (s *AuthService) publish(event string, user *models.User) {
	if s.events == nil {
		return
	}
	payload := map[string]interface{}{
		"user_id": user.ID,
		"email":   user.Email,
	}
	if err := s.events.PublishUserEvent(event, payload); err != nil {
		log.Printf("Failed to publish %s event for %s: %v", event, user.ID, err)
	}
}

func welcomeReferralEmail(username, referralCode string) (subject, body string) {
	subject = "Welcome to SaveFi! Here's your referral code"
	body = fmt.Sprintf(`Hi %s,

Welcome to SaveFi! Your personal referral code is: %s

Share it with your friends to earn rewards.

Thanks,
The SaveFi Team`, username, referralCode)
	return subject, body
}
