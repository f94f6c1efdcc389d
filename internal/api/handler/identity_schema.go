package handler

import (
	"time"

	"github.com/milsabores/identity-service/internal/core/domain"
	"github.com/milsabores/identity-service/internal/core/ports"
)

// Messages returned by endpoints that do not echo back an identity.
const (
	msgRecoveryStarted = "If the email is registered, we will send instructions to recover the password."
	msgPasswordReset   = "Password updated successfully."
	msgPhotoUpdated    = "Profile photo updated successfully."
)

type registerRequest struct {
	ID                 string  `json:"id"                   validate:"required"`
	Name               string  `json:"name"`
	Email              string  `json:"email"                validate:"required"`
	Password           string  `json:"password"             validate:"required"`
	Role               *int    `json:"role"` // accepted for compatibility, ignored
	ExternalIdentityID *string `json:"external_identity_id"`
	BirthDate          string  `json:"birth_date"           example:"10-05-2020"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

type updateNameRequest struct {
	NewName string `json:"new_name" validate:"required"`
}

type updatePhotoRequest struct {
	ImageBase64 string `json:"image_base64" validate:"required"`
}

type recoverPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"        validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

type authResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Token string `json:"token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type userResponse struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Email              string       `json:"email"`
	RoleID             int          `json:"role_id"`
	ExternalIdentityID *string      `json:"external_identity_id,omitempty"`
	BirthDate          *domain.Date `json:"birth_date,omitempty" swaggertype:"string" example:"10-05-2020"`
	Age                *int         `json:"age,omitempty"`
	ProfileImage       []byte       `json:"profile_image,omitempty" swaggertype:"string" format:"base64"`
}

func toAuthResponse(r *ports.AuthResult) authResponse {
	return authResponse{ID: r.ID, Email: r.Email, Token: r.Token}
}

func toUserResponse(u *domain.User, now time.Time) userResponse {
	return userResponse{
		ID:                 u.ID,
		Name:               u.DisplayName,
		Email:              u.Email,
		RoleID:             u.RoleID,
		ExternalIdentityID: u.ExternalIdentityID,
		BirthDate:          u.BirthDate,
		Age:                u.Age(now),
		ProfileImage:       u.ProfileImage,
	}
}
