// Package validation holds every input format rule of the portal. Both the
// HTTP edge and the core services validate through this package so the rules
// cannot drift apart.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/swiftportal/payments-portal/internal/core/domain"
	"github.com/swiftportal/payments-portal/internal/core/ports"
)

var patterns = map[string]*regexp.Regexp{
	"fullname":         regexp.MustCompile(`^[a-zA-Z \-']{2,100}$`),
	"nationalid":       regexp.MustCompile(`^\d{13}$`),
	"accountnumber":    regexp.MustCompile(`^\d{10,12}$`),
	"customerusername": regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`),
	"employeeusername": regexp.MustCompile(`^[a-zA-Z0-9._]{3,20}$`),
	"customerid":       regexp.MustCompile(`^CUST[0-9]{4,6}$`),
	"employeeid":       regexp.MustCompile(`^EMP[0-9]{4,6}$`),
	"passwordchars":    regexp.MustCompile(`^[A-Za-z\d@$!%*?&#]{8,72}$`),
}

// Validator wraps go-playground/validator with the portal's custom tags.
type Validator struct {
	v *validator.Validate
}

// New registers the custom tags and reports fields by their json names.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	for tag, re := range patterns {
		re := re
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return re.MatchString(strings.TrimSpace(fl.Field().String()))
		})
	}
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return passwordFormatOK(fl.Field().String())
	})
	_ = v.RegisterValidation("permission", func(fl validator.FieldLevel) bool {
		return domain.Permission(fl.Field().String()).Valid()
	})
	return &Validator{v: v}
}

// Struct validates i and converts failures into *domain.ValidationError.
func (val *Validator) Struct(i any) error {
	err := val.v.Struct(i)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := &domain.ValidationError{}
	for _, fe := range ve {
		out.Add(fe.Field(), fieldMessage(fe))
	}
	return out
}

type registration struct {
	FullName      string `json:"full_name" validate:"required,fullname"`
	NationalID    string `json:"id_number" validate:"required,nationalid"`
	AccountNumber string `json:"account_number" validate:"required,accountnumber"`
	Username      string `json:"username" validate:"required,customerusername"`
	Password      string `json:"password" validate:"required,password"`
}

// ValidateRegistration checks every registration field and, independently,
// the password strength. All problems are reported together.
func (val *Validator) ValidateRegistration(in ports.RegisterCustomerInput) error {
	out := &domain.ValidationError{}
	if err := val.Struct(registration{
		FullName:      in.FullName,
		NationalID:    in.NationalID,
		AccountNumber: in.AccountNumber,
		Username:      in.Username,
		Password:      in.Password,
	}); err != nil {
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		out.Fields = ve.Fields
	}
	if strength := CheckPasswordStrength(in.Password); !strength.Strong {
		out.Feedback = strength.Feedback
	}
	return out.OrNil()
}

// NormalizeUsername trims and lowercases a username.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmployeeLogin accepts a username or an employee id. Employee ids
// are upper-cased, usernames lower-cased.
func NormalizeEmployeeLogin(s string) (login string, isExternalID bool) {
	s = strings.TrimSpace(s)
	if upper := strings.ToUpper(s); patterns["employeeid"].MatchString(upper) {
		return upper, true
	}
	return strings.ToLower(s), false
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_without":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "permission":
		return field + " must be a known permission"
	default:
		return "invalid " + field + " format"
	}
}
