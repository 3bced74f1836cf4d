// Package forms validates submitted HTML form data against declarative
// field constraints and reports per-field error messages.
package forms

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"
	"github.com/osiprototype/backend/models"
)

// UserLookup is the slice of the user store the uniqueness checks need.
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

var (
	validate = newValidator()
	decoder  = form.NewDecoder()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// length=min:max counts characters; either bound may be omitted
	if err := v.RegisterValidation("length", validateLength); err != nil {
		panic(err)
	}
	// range=min:max bounds an integer inclusively
	if err := v.RegisterValidation("range", validateRange); err != nil {
		panic(err)
	}
	return v
}

type bounds struct {
	min, max       int64
	hasMin, hasMax bool
}

func parseBounds(param string) bounds {
	var b bounds
	lo, hi, _ := strings.Cut(param, ":")
	if n, err := strconv.ParseInt(lo, 10, 64); err == nil {
		b.min, b.hasMin = n, true
	}
	if n, err := strconv.ParseInt(hi, 10, 64); err == nil {
		b.max, b.hasMax = n, true
	}
	return b
}

func (b bounds) contains(n int64) bool {
	return (!b.hasMin || n >= b.min) && (!b.hasMax || n <= b.max)
}

func validateLength(fl validator.FieldLevel) bool {
	return parseBounds(fl.Param()).contains(int64(utf8.RuneCountInString(fl.Field().String())))
}

func validateRange(fl validator.FieldLevel) bool {
	return parseBounds(fl.Param()).contains(fl.Field().Int())
}

func plural(n int64, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func lengthMessage(param string) string {
	b := parseBounds(param)
	switch {
	case b.hasMin && b.hasMax:
		return fmt.Sprintf("Field must be between %d and %d characters long.", b.min, b.max)
	case b.hasMin:
		return fmt.Sprintf("Field must be at least %d %s long.", b.min, plural(b.min, "character"))
	default:
		return fmt.Sprintf("Field cannot be longer than %d %s.", b.max, plural(b.max, "character"))
	}
}

func rangeMessage(param string) string {
	b := parseBounds(param)
	switch {
	case b.hasMin && b.hasMax:
		return fmt.Sprintf("Number must be between %d and %d.", b.min, b.max)
	case b.hasMin:
		return fmt.Sprintf("Number must be at least %d.", b.min)
	default:
		return fmt.Sprintf("Number must be at most %d.", b.max)
	}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Invalid email address."
	case "length":
		return lengthMessage(fe.Param())
	case "range":
		return rangeMessage(fe.Param())
	case "eqfield":
		return fmt.Sprintf("Field must be equal to %s.", strings.ToLower(fe.Param()))
	case "oneof":
		return "Not a valid choice."
	}
	return "Invalid value."
}

// Errors holds field-scoped error messages, reported in the form's field order.
type Errors struct {
	order  []string
	fields map[string][]string
}

func newErrors(order []string) Errors {
	return Errors{order: order, fields: make(map[string][]string)}
}

func (e *Errors) Add(field, msg string) {
	if e.fields == nil {
		e.fields = make(map[string][]string)
	}
	e.fields[field] = append(e.fields[field], msg)
}

func (e Errors) Get(field string) []string {
	return e.fields[field]
}

func (e Errors) Any() bool {
	return len(e.fields) > 0
}

// First returns the first message of the first failing field, or "" when valid.
func (e Errors) First() string {
	for _, field := range e.order {
		if msgs := e.fields[field]; len(msgs) > 0 {
			return msgs[0]
		}
	}
	for _, msgs := range e.fields {
		if len(msgs) > 0 {
			return msgs[0]
		}
	}
	return ""
}

func (e Errors) Map() map[string][]string {
	return e.fields
}

// nonEmpty drops blank values so optional fields decode to their zero value
// (nil for pointers) instead of failing to parse.
func nonEmpty(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for k, vs := range values {
		if len(vs) > 0 && strings.TrimSpace(vs[0]) != "" {
			out[k] = vs[:1]
		}
	}
	return out
}

// bind decodes values into dst and runs its validate tags, recording failures.
func bind(dst interface{}, values url.Values, errs *Errors, overrides map[string]string) {
	if err := decoder.Decode(dst, nonEmpty(values)); err != nil {
		var decodeErrs form.DecodeErrors
		if errors.As(err, &decodeErrs) {
			for field := range decodeErrs {
				errs.Add(field, "Not a valid integer value.")
			}
		} else {
			errs.Add("", err.Error())
		}
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			errs.Add("", err.Error())
			return
		}
		for _, fe := range verrs {
			field := fe.Field()
			if len(errs.Get(field)) > 0 {
				// decode failure already reported for this field
				continue
			}
			if msg, ok := overrides[field+"."+fe.Tag()]; ok {
				errs.Add(field, msg)
				continue
			}
			errs.Add(field, message(fe))
		}
	}
}

// checkbox follows HTML checkbox semantics: absent, empty or "false" is false.
func checkbox(values url.Values, field string) bool {
	v, ok := values[field]
	if !ok || len(v) == 0 {
		return false
	}
	return v[0] != "" && v[0] != "false"
}
