package models

import "time"

// OTPData is the server-side state of a phone login code. Only the bcrypt
// hash of the code is kept.
type OTPData struct {
	OTPHash   string    `json:"otp_hash" dynamodbav:"otp_hash"`
	Phone     string    `json:"phone" dynamodbav:"phone"`
	Attempts  int       `json:"attempts" dynamodbav:"attempts"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt time.Time `json:"expires_at" dynamodbav:"expires_at"`
}
