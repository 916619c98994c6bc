package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/ledger/internal/shared"
)

// FieldErrors collects per-field validation failures.
type FieldErrors struct {
	Fields map[string]string
}

func (e *FieldErrors) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *FieldErrors) Unwrap() error { return ErrBadRequest }

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Bind decodes the JSON body into target and runs struct validation.
func Bind(r *http.Request, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return err
	}
	return Validate(target)
}

// BindOptional is Bind for endpoints whose body may be omitted.
func BindOptional(r *http.Request, target any) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return Validate(target)
	}
	return Bind(r, target)
}

// Validate runs struct validation and converts failures to FieldErrors.
func Validate(target any) error {
	err := validatorInstance().Struct(target)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Namespace()
		if idx := strings.Index(name, "."); idx >= 0 {
			name = name[idx+1:]
		}
		fields[name] = describe(fe)
	}
	return &FieldErrors{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " items"
	case "max":
		return "must be at most " + fe.Param()
	case "numeric":
		return "must be a decimal number"
	default:
		return "failed " + fe.Tag()
	}
}

// QueryDate parses a YYYY-MM-DD or RFC3339 query parameter. Missing values
// return the zero time. endOfDay moves plain dates to the last instant of
// that day so inclusive ranges work.
func QueryDate(r *http.Request, name string, endOfDay bool) (time.Time, error) {
	return ParseDate(name, r.URL.Query().Get(name), endOfDay)
}

// ParseDate parses raw as YYYY-MM-DD or RFC3339 and reports failures against
// field.
func ParseDate(field, raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, &FieldErrors{Fields: map[string]string{field: "must be YYYY-MM-DD or RFC3339"}}
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// QueryInt parses an integer query parameter, returning def when absent.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &FieldErrors{Fields: map[string]string{name: "must be an integer"}}
	}
	return v, nil
}

// QueryList splits comma separated and repeated query values.
func QueryList(r *http.Request, name string) []string {
	var out []string
	for _, raw := range r.URL.Query()[name] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// RequireActor returns the authenticated actor or ErrMissingActor.
func RequireActor(r *http.Request) (string, error) {
	actor := strings.TrimSpace(shared.ActorFromContext(r.Context()))
	if actor == "" {
		return "", shared.ErrMissingActor
	}
	return actor, nil
}

// RequireQuery returns a trimmed, non-empty query parameter.
func RequireQuery(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return "", &FieldErrors{Fields: map[string]string{name: "is required"}}
	}
	return v, nil
}
