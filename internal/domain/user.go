package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	VerificationTTL = 24 * time.Hour
	ResetTTL        = time.Hour
)

type User struct {
	ID                         primitive.ObjectID `bson:"_id,omitempty"                           json:"_id"`
	Name                       string             `bson:"name"                                    json:"name"`
	Email                      string             `bson:"email"                                   json:"email"`
	PasswordHash               string             `bson:"password_hash"                           json:"-"`
	IsVerified                 bool               `bson:"is_verified"                             json:"isVerified"`
	VerificationToken          string             `bson:"verification_token,omitempty"            json:"-"`
	VerificationTokenExpiresAt *time.Time         `bson:"verification_token_expires_at,omitempty" json:"verificationTokenExpiresAt,omitempty"`
	ResetPasswordToken         string             `bson:"reset_password_token,omitempty"          json:"-"`
	ResetPasswordExpiresAt     *time.Time         `bson:"reset_password_expires_at,omitempty"     json:"resetPasswordExpiresAt,omitempty"`
	LastLogin                  *time.Time         `bson:"last_login,omitempty"                    json:"lastLogin,omitempty"`
	CreatedAt                  time.Time          `bson:"created_at"                              json:"createdAt"`
	UpdatedAt                  time.Time          `bson:"updated_at"                              json:"updatedAt"`
}

// LoginUser is what login hands back to the client.
type LoginUser struct {
	ID        primitive.ObjectID `json:"_id"`
	Name      string             `json:"name"`
	Email     string             `json:"email"`
	LastLogin *time.Time         `json:"lastLogin,omitempty"`
}

func (u *User) LoginView() LoginUser {
	return LoginUser{ID: u.ID, Name: u.Name, Email: u.Email, LastLogin: u.LastLogin}
}

// VerificationValid reports whether code matches the pending verification
// token and the token has not expired at now.
func (u *User) VerificationValid(code string, now time.Time) bool {
	return u.VerificationToken != "" && u.VerificationToken == code &&
		u.VerificationTokenExpiresAt != nil && u.VerificationTokenExpiresAt.After(now)
}

func (u *User) ResetValid(token string, now time.Time) bool {
	return u.ResetPasswordToken != "" && u.ResetPasswordToken == token &&
		u.ResetPasswordExpiresAt != nil && u.ResetPasswordExpiresAt.After(now)
}
