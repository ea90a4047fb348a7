package repositories

import (
	"fmt"
	"sync"
	"time"

	"savefi/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MockUserRepository is an in-memory implementation of UserRepository.
type MockUserRepository struct {
	users map[string]models.User
	mu    sync.RWMutex
}

// NewMockUserRepository creates a new instance of MockUserRepository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users: make(map[string]models.User),
	}
}

// Create adds a new user, enforcing the same unique constraints as the
// database schema.
func (r *MockUserRepository) Create(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			return gorm.ErrDuplicatedKey
		}
		if user.ReferrerCode != nil && u.ReferrerCode != nil && *u.ReferrerCode == *user.ReferrerCode {
			return gorm.ErrDuplicatedKey
		}
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	r.users[user.ID] = *user
	return nil
}

// GetByEmail returns a user by email. includePassword is accepted for
// interface parity; the in-memory copy always carries the hash.
func (r *MockUserRepository) GetByEmail(email string, includePassword bool) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email == email {
			user := u
			if !includePassword {
				user.Password = ""
			}
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user with email %s not found", email)
}

// GetByUsername returns a user by username.
func (r *MockUserRepository) GetByUsername(username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			user := u
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user with username %s not found", username)
}

// GetByID returns a user by ID.
func (r *MockUserRepository) GetByID(id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user with ID %s not found", id)
	}
	return &user, nil
}

// GetByEmailAndOTP returns a user matching email, stored code and an expiry
// strictly after now, mirroring the single-condition database lookup.
func (r *MockUserRepository) GetByEmailAndOTP(email, otp string, now time.Time) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email == email && u.OTP != nil && *u.OTP == otp && u.OTPExpires != nil && u.OTPExpires.After(now) {
			user := u
			return &user, nil
		}
	}
	return nil, fmt.Errorf("no user with a matching pending OTP for %s", email)
}

// GetByReferrerCode returns a user by referral code.
func (r *MockUserRepository) GetByReferrerCode(code string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.ReferrerCode != nil && *u.ReferrerCode == code {
			user := u
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user with referral code %s not found", code)
}

// Save replaces the stored record.
func (r *MockUserRepository) Save(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.users[user.ID]
	if !ok {
		return fmt.Errorf("user with ID %s not found for save", user.ID)
	}
	r.users[user.ID] = *user
	return nil
}
