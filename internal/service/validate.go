package service

import (
	"errors"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	apperrors "github.com/target/libsession/internal/errors"
	"github.com/target/libsession/internal/ports"
)

// Client-side checks run before any network call so obviously bad input never
// reaches the backend.

var (
	ruleEmail = []validation.Rule{
		validation.Required.Error("Email is required"),
		is.EmailFormat.Error("Enter a valid email address"),
	}
	rulePassword = []validation.Rule{
		validation.Required.Error("Password is required"),
		validation.Length(1, 256).Error("Password is too long"),
	}
)

func validateLogin(email, password string) error {
	return asValidation(validation.Errors{
		"email":    validation.Validate(strings.TrimSpace(email), ruleEmail...),
		"password": validation.Validate(password, rulePassword...),
	}.Filter())
}

func validateRegister(in ports.RegisterInput) error {
	return asValidation(validation.ValidateStruct(&in,
		validation.Field(&in.FullName, validation.Length(0, 200).Error("Full name is too long")),
		validation.Field(&in.Email, ruleEmail...),
		validation.Field(&in.Password, rulePassword...),
	))
}

func validateEmail(email string) error {
	return asValidation(validation.Errors{
		"email": validation.Validate(strings.TrimSpace(email), ruleEmail...),
	}.Filter())
}

func validateReset(token, newPassword string) error {
	return asValidation(validation.Errors{
		"token":        validation.Validate(strings.TrimSpace(token), validation.Required.Error("Reset token is required")),
		"new_password": validation.Validate(newPassword, rulePassword...),
	}.Filter())
}

// asValidation flattens ozzo errors into one ValidationError whose message
// lists each field's problem in field order.
func asValidation(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}

	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, field := range fields {
		msgs = append(msgs, errs[field].Error())
	}
	out := apperrors.Validation(strings.Join(msgs, "; "))
	if len(fields) == 1 {
		out.Field = fields[0]
	}
	return out
}
