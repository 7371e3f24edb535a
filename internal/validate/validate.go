// Package validate checks procedure inputs before they reach persistence and
// reports failures field by field.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is returned by Struct when at least one field is invalid.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Checker is implemented by inputs with rules that span several fields.
type Checker interface {
	Check() []FieldError
}

var engine = newEngine()

func newEngine() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("maxbytes", maxBytes)
	v.RegisterCustomTypeFunc(optionalValue,
		Optional[string]{}, Optional[int]{}, Optional[Date]{})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		return field.Interface().(Date).Time
	}, Date{})
	return v
}

// maxBytes bounds the encoded length of a string, where max counts runes.
// bcrypt only reads the first 72 bytes of a password.
func maxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		panic(fmt.Sprintf("maxbytes: bad param %q", fl.Param()))
	}
	return fl.Field().Kind() == reflect.String && len(fl.Field().String()) <= limit
}

// Struct validates tags and then the input's own Check rules.
func Struct(input any) error {
	var fields []FieldError
	if err := engine.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Message: message(fe)})
		}
	}
	if c, ok := input.(Checker); ok {
		fields = append(fields, c.Check()...)
	}
	if len(fields) > 0 {
		return &Error{Fields: fields}
	}
	return nil
}

func Fail(field, msg string) error {
	return &Error{Fields: []FieldError{{Field: field, Message: msg}}}
}

func message(fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required", "notblank":
		return "Ce champ est requis."
	case "min":
		if isString {
			return fmt.Sprintf("Doit contenir au moins %s caractères.", fe.Param())
		}
		return fmt.Sprintf("Doit être supérieur ou égal à %s.", fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("Doit contenir au plus %s caractères.", fe.Param())
		}
		return fmt.Sprintf("Doit être inférieur ou égal à %s.", fe.Param())
	case "maxbytes":
		return fmt.Sprintf("Doit faire au plus %s octets.", fe.Param())
	case "len":
		return fmt.Sprintf("Doit contenir exactement %s caractères.", fe.Param())
	case "email":
		return "Adresse email invalide."
	case "url", "http_url":
		return "URL invalide."
	case "uuid", "uuid4":
		return "Identifiant invalide."
	case "oneof":
		return "Valeur non autorisée."
	case "numeric":
		return "Ne doit contenir que des chiffres."
	default:
		return "Valeur invalide."
	}
}

// Optional distinguishes an omitted field from an explicit null in update
// inputs: omitted leaves the stored value unchanged, null clears it.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Null = true
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Ptr is nil for an omitted or null field.
func (o Optional[T]) Ptr() *T {
	if !o.Set || o.Null {
		return nil
	}
	v := o.Value
	return &v
}

func Some[T any](v T) Optional[T] { return Optional[T]{Set: true, Value: v} }
func Null[T any]() Optional[T]    { return Optional[T]{Set: true, Null: true} }

func (o Optional[T]) validationValue() any {
	if !o.Set || o.Null {
		return nil
	}
	return o.Value
}

func optionalValue(field reflect.Value) any {
	if v, ok := field.Interface().(interface{ validationValue() any }); ok {
		return v.validationValue()
	}
	return nil
}

const dateLayout = "2006-01-02"

// Date is a calendar day carried as "YYYY-MM-DD". Full RFC 3339 timestamps
// are accepted and truncated to their UTC day.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		d.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		*d = NewDate(t)
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("invalid date %q", raw)
	}
	*d = NewDate(t)
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

// DateRange reports an end date before its start date.
func DateRange(start time.Time, end *time.Time, field string) []FieldError {
	if end == nil || start.IsZero() || end.IsZero() {
		return nil
	}
	if end.Before(start) {
		return []FieldError{{Field: field, Message: "La date de fin doit être postérieure ou égale à la date de début."}}
	}
	return nil
}

// NotCleared rejects an explicit null or blank value for an update field that
// cannot be emptied.
func NotCleared(o Optional[string], field string) []FieldError {
	if o.Null || (o.Set && strings.TrimSpace(o.Value) == "") {
		return []FieldError{{Field: field, Message: "Ce champ est requis."}}
	}
	return nil
}
