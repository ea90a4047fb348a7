package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an account holder.
type User struct {
	ID       string `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Username string `json:"username" gorm:"uniqueIndex;type:varchar(100)" validate:"required,min=3,max=100"`
	Email    string `json:"email" gorm:"uniqueIndex;type:varchar(255)" validate:"required,email"`
	Password string `json:"-" gorm:"type:varchar(255)"` // bcrypt hash, never serialized

	// Pending OTP for email verification or password reset.
	// Both fields are set together on issue and cleared together on consume.
	OTP        *string    `json:"-" gorm:"type:varchar(6)"`
	OTPExpires *time.Time `json:"-"`

	IsVerified bool `json:"isVerified" gorm:"default:false"`

	// Profile details collected after signup.
	FirstName    string  `json:"firstName" gorm:"type:varchar(100)"`
	LastName     string  `json:"lastName" gorm:"type:varchar(100)"`
	ReferrerCode *string `json:"referrerCode,omitempty" gorm:"uniqueIndex;type:varchar(16)"`
	ReferredBy   *string `json:"referredBy,omitempty" gorm:"type:varchar(16)"`

	HasCompletedProfile bool `json:"hasCompletedProfile" gorm:"default:false"`

	gorm.Model `json:"-"` // CreatedAt, UpdatedAt, DeletedAt
}

// HasPendingOTP reports whether an OTP has been issued and not yet consumed.
// It does not check expiry; expiry is enforced at lookup time.
func (u *User) HasPendingOTP() bool {
	return u.OTP != nil && u.OTPExpires != nil
}
