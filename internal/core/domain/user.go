package domain

import "time"

// RoleCustomer is assigned to every self-registered user.
const RoleCustomer = 1

// User models a registered account.
type User struct {
	ID                 string    `json:"id"`
	DisplayName        string    `json:"name"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"-"`
	RoleID             int       `json:"role_id"`
	ExternalIdentityID *string   `json:"external_identity_id,omitempty"`
	ProfileImage       []byte    `json:"profile_image,omitempty"`
	BirthDate          *Date     `json:"birth_date,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Age returns the user's age in whole years at now, or nil when no birth
// date is recorded.
func (u *User) Age(now time.Time) *int {
	if u.BirthDate == nil {
		return nil
	}
	age := u.BirthDate.YearsAt(now)
	return &age
}
