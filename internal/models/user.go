package models

import (
	"time"

	"github.com/farmlink/farmlink/internal/otp"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleFarmer   Role = "farmer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleFarmer, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

func (r Role) OneOf(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

type User struct {
	ID                string      `json:"id" dynamodbav:"id"`
	Email             string      `json:"email,omitempty" dynamodbav:"email,omitempty"`
	PhoneNumber       string      `json:"phone_number,omitempty" dynamodbav:"phone_number,omitempty"`
	Name              string      `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Role              Role        `json:"role" dynamodbav:"role"`
	PasswordHash      string      `json:"-" dynamodbav:"password_hash,omitempty"`
	IsActive          bool        `json:"is_active" dynamodbav:"is_active"`
	IsVerified        bool        `json:"is_verified" dynamodbav:"is_verified"`
	EmailVerification *otp.Record `json:"-" dynamodbav:"email_verification,omitempty"`
	CreatedAt         time.Time   `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at" dynamodbav:"updated_at"`
}

func (u *User) GetPK() string {
	return "USER#" + u.ID
}

func (u *User) GetSK() string {
	return "METADATA"
}
