package repositories

import (
	"time"

	"savefi/internal/models"
)

// UserRepository defines the interface for user data access.
type UserRepository interface {
	Create(user *models.User) error
	// GetByEmail retrieves a user by email. The password hash is only
	// loaded when includePassword is true. Callers that go on to Save the
	// record must request the password, since Save writes every column.
	GetByEmail(email string, includePassword bool) (*models.User, error)
	GetByUsername(username string) (*models.User, error)
	GetByID(id string) (*models.User, error)
	// GetByEmailAndOTP performs the atomic OTP lookup: the record must match
	// email AND stored code AND have an expiry strictly after now.
	GetByEmailAndOTP(email, otp string, now time.Time) (*models.User, error)
	GetByReferrerCode(code string) (*models.User, error)
	Save(user *models.User) error
}
