package forms

import (
	"context"
	"fmt"
	"net/url"

	"github.com/osiprototype/backend/models"
)

var registerFields = []string{"username", "email", "password", "confirm", "role"}

// RegisterForm is the account sign-up form.
type RegisterForm struct {
	Username string `form:"username" validate:"required,length=3:25"`
	Email    string `form:"email" validate:"required,email,length=6:40"`
	Password string `form:"password" validate:"required,length=6:40"`
	Confirm  string `form:"confirm" validate:"required,eqfield=Password"`
	Role     string `form:"role" validate:"omitempty,oneof=parent agent"`

	Errors Errors `form:"-" validate:"-"`
	values url.Values
}

func NewRegisterForm(values url.Values) *RegisterForm {
	return &RegisterForm{values: values, Errors: newErrors(registerFields)}
}

// Validate runs the field constraints and, only when they all pass, checks
// that the username and then the email are not taken. The first duplicate
// found stops validation.
func (f *RegisterForm) Validate(ctx context.Context, users UserLookup) (bool, error) {
	bind(f, f.values, &f.Errors, map[string]string{
		"confirm.eqfield": "Passwords must match",
	})
	if f.Errors.Any() {
		return false, nil
	}

	existing, err := users.GetUserByUsername(ctx, f.Username)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		f.Errors.Add("username", "Username already registered")
		return false, nil
	}

	existing, err = users.GetUserByEmail(ctx, f.Email)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		f.Errors.Add("email", "Email already registered")
		return false, nil
	}

	return true, nil
}

// RoleOrDefault returns the chosen role, parent when none was given.
func (f *RegisterForm) RoleOrDefault() string {
	if f.Role == "" {
		return models.RoleParent
	}
	return f.Role
}
