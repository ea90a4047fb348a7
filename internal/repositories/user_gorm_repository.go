package repositories

import (
	"errors"
	"fmt"
	"time"

	"savefi/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMUserRepository is a GORM implementation of UserRepository.
type GORMUserRepository struct {
	db *gorm.DB
}

// NewGORMUserRepository creates a new instance of GORMUserRepository.
func NewGORMUserRepository(db *gorm.DB) *GORMUserRepository {
	return &GORMUserRepository{
		db: db,
	}
}

// Create creates a new user in the database. Unique-index violations on
// username, email or referrer code surface as gorm.ErrDuplicatedKey.
func (r *GORMUserRepository) Create(user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if err := r.db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return gorm.ErrDuplicatedKey
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByEmail retrieves a user by their email from the database.
func (r *GORMUserRepository) GetByEmail(email string, includePassword bool) (*models.User, error) {
	var user models.User
	tx := r.db
	if !includePassword {
		tx = tx.Omit("password")
	}
	if err := tx.First(&user, "email = ?", email).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user with email %s not found", email)
		}
		return nil, fmt.Errorf("failed to get user by email %s: %w", email, err)
	}
	return &user, nil
}

// GetByUsername retrieves a user by their username from the database.
func (r *GORMUserRepository) GetByUsername(username string) (*models.User, error) {
	var user models.User
	if err := r.db.Omit("password").First(&user, "username = ?", username).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user with username %s not found", username)
		}
		return nil, fmt.Errorf("failed to get user by username %s: %w", username, err)
	}
	return &user, nil
}

// GetByID retrieves a user by their ID from the database. The full record
// is loaded (mutation paths call Save, which writes every column).
func (r *GORMUserRepository) GetByID(id string) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user with ID %s not found", id)
		}
		return nil, fmt.Errorf("failed to get user by ID %s: %w", id, err)
	}
	return &user, nil
}

// GetByEmailAndOTP retrieves a user whose stored OTP matches and has not yet
// expired. Wrong code, expired code and no pending code are indistinguishable:
// all three miss the single WHERE condition.
func (r *GORMUserRepository) GetByEmailAndOTP(email, otp string, now time.Time) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, "email = ? AND otp = ? AND otp_expires > ?", email, otp, now).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("no user with a matching pending OTP for %s", email)
		}
		return nil, fmt.Errorf("failed to look up OTP for %s: %w", email, err)
	}
	return &user, nil
}

// GetByReferrerCode retrieves a user by their referral code.
func (r *GORMUserRepository) GetByReferrerCode(code string) (*models.User, error) {
	var user models.User
	if err := r.db.Omit("password").First(&user, "referrer_code = ?", code).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user with referral code %s not found", code)
		}
		return nil, fmt.Errorf("failed to get user by referral code %s: %w", code, err)
	}
	return &user, nil
}

// Save persists in-place mutations of a user record.
func (r *GORMUserRepository) Save(user *models.User) error {
	if err := r.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to save user %s: %w", user.ID, err)
	}
	return nil
}
