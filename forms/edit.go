package forms

import (
	"context"
	"fmt"
	"net/url"
)

var editFields = []string{
	"blurb", "email", "address", "first_name", "last_name",
	"phone_number", "license_number",
	"num_adults", "num_children", "num_capacity",
	"pref_girls", "pref_boys", "pref_1_to_5", "pref_6_to_9", "pref_10_to_18",
	"pref_siblings", "pref_behavioral", "pref_respite",
}

var editCheckboxes = map[string]bool{
	"pref_girls": true, "pref_boys": true, "pref_1_to_5": true, "pref_6_to_9": true,
	"pref_10_to_18": true, "pref_siblings": true, "pref_behavioral": true, "pref_respite": true,
}

// EditForm is the profile edit form. Every field is optional and only the
// submitted ones are applied.
type EditForm struct {
	Blurb         string `form:"blurb" validate:"omitempty,length=0:128"`
	Email         string `form:"email" validate:"omitempty,email,length=6:40"`
	Address       string `form:"address" validate:"omitempty,length=6:128"`
	FirstName     string `form:"first_name" validate:"omitempty,length=1:40"`
	LastName      string `form:"last_name" validate:"omitempty,length=1:40"`
	PhoneNumber   string `form:"phone_number" validate:"omitempty,length=10:"`
	LicenseNumber string `form:"license_number" validate:"omitempty,length=6:"`
	NumAdults     *int   `form:"num_adults" validate:"omitempty,range=0:4"`
	NumChildren   *int   `form:"num_children" validate:"omitempty,range=0:10"`
	NumCapacity   *int   `form:"num_capacity" validate:"omitempty,range=0:10"`

	Errors Errors `form:"-" validate:"-"`

	values    url.Values
	submitted map[string]bool
}

func NewEditForm(values url.Values) *EditForm {
	submitted := make(map[string]bool)
	for _, field := range editFields {
		if _, ok := values[field]; ok {
			submitted[field] = true
		}
	}
	return &EditForm{values: values, submitted: submitted, Errors: newErrors(editFields)}
}

// Validate checks the submitted fields. A blank email is dropped from the
// submitted set so the stored address is kept; a non-blank one must not
// belong to another account.
func (f *EditForm) Validate(ctx context.Context, users UserLookup, currentUserID string) (bool, error) {
	bind(f, f.values, &f.Errors, nil)
	if f.Errors.Any() {
		return false, nil
	}

	if f.Email == "" {
		delete(f.submitted, "email")
		return true, nil
	}

	existing, err := users.GetUserByEmail(ctx, f.Email)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil && existing.ID != currentUserID {
		f.Errors.Add("email", "Email already registered")
		return false, nil
	}

	return true, nil
}

// Submitted reports whether a field takes part in the update.
func (f *EditForm) Submitted(field string) bool {
	return f.submitted[field]
}

// Updates returns column → value for every submitted field. Call after a
// successful Validate.
func (f *EditForm) Updates() map[string]interface{} {
	data := map[string]interface{}{
		"blurb":          f.Blurb,
		"email":          f.Email,
		"address":        f.Address,
		"first_name":     f.FirstName,
		"last_name":      f.LastName,
		"phone_number":   f.PhoneNumber,
		"license_number": f.LicenseNumber,
		"num_adults":     intOrNil(f.NumAdults),
		"num_children":   intOrNil(f.NumChildren),
		"num_capacity":   intOrNil(f.NumCapacity),
	}
	for field := range editCheckboxes {
		data[field] = checkbox(f.values, field)
	}

	updates := make(map[string]interface{}, len(f.submitted))
	for field := range f.submitted {
		updates[field] = data[field]
	}
	return updates
}

func intOrNil(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
