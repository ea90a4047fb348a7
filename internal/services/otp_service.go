package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"savefi/internal/models"
	"savefi/internal/repositories"
)

// OTPTTL is how long an issued OTP stays valid. One constant for the whole
// system: verification and password reset share it.
const OTPTTL = 10 * time.Minute

// ErrInvalidOrExpiredOTP is returned for every OTP validation failure.
// Wrong code, expired code and no pending code are deliberately
// indistinguishable to the caller.
var ErrInvalidOrExpiredOTP = errors.New("invalid or expired OTP")

// OTPService generates, issues, validates and consumes the one-time codes
// stored on user records.
type OTPService struct {
	userRepo repositories.UserRepository
}

// NewOTPService creates a new OTPService.
func NewOTPService(userRepo repositories.UserRepository) *OTPService {
	return &OTPService{
		userRepo: userRepo,
	}
}

// Generate returns a uniformly random 6-digit decimal code in
// [100000, 999999]. Codes may collide across users; validation is always
// scoped to a single record.
func (s *OTPService) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// Issue sets a freshly generated code and expiry on the record and persists
// it. Any previously pending code is overwritten (last write wins).
func (s *OTPService) Issue(user *models.User) (string, error) {
	code, err := s.Generate()
	if err != nil {
		return "", err
	}

	expires := time.Now().Add(OTPTTL)
	user.OTP = &code
	user.OTPExpires = &expires

	if err := s.userRepo.Save(user); err != nil {
		return "", err
	}
	return code, nil
}

// Validate returns the user whose pending code matches and has not expired.
// The lookup is a single atomic condition on (email, code, expiry > now); all
// failure modes collapse to ErrInvalidOrExpiredOTP.
func (s *OTPService) Validate(email, code string) (*models.User, error) {
	user, err := s.userRepo.GetByEmailAndOTP(email, code, time.Now())
	if err != nil {
		return nil, ErrInvalidOrExpiredOTP
	}
	return user, nil
}

// Consume clears the pending code and expiry on the record and persists it.
// Called after a successful verification or password reset; the same code
// can never validate twice.
func (s *OTPService) Consume(user *models.User) error {
	user.OTP = nil
	user.OTPExpires = nil
	return s.userRepo.Save(user)
}
