package common

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/sharedcal/internal/apierror"
)

// Args decodes tool arguments and collects validation failures per field.
// Accessors never fail; call Err once all fields have been read.
type Args struct {
	values map[string]any
	errors map[string][]string
	fields []string
}

// NewArgs wraps the arguments of request.
func NewArgs(request mcp.CallToolRequest) *Args {
	return ArgsFromMap(request.GetArguments())
}

// ArgsFromMap wraps an already decoded argument map.
func ArgsFromMap(values map[string]any) *Args {
	if values == nil {
		values = map[string]any{}
	}
	return &Args{values: values, errors: map[string][]string{}}
}

// Label is the human readable name of a field ("time_min" is "time min").
func Label(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}

// Present reports whether field was sent with a non-null, non-empty value.
func (a *Args) Present(field string) bool {
	v, ok := a.values[field]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString && s == "" {
		return false
	}
	if list, isList := v.([]any); isList && len(list) == 0 {
		return false
	}
	return true
}

// Fail records a validation failure on field.
func (a *Args) Fail(field, message string) {
	if _, seen := a.errors[field]; !seen {
		a.fields = append(a.fields, field)
	}
	a.errors[field] = append(a.errors[field], message)
}

// Failed reports whether field already has a recorded failure.
func (a *Args) Failed(field string) bool {
	return len(a.errors[field]) > 0
}

// Require records a failure for each field that is not present.
func (a *Args) Require(fields ...string) {
	for _, field := range fields {
		if !a.Present(field) {
			a.Fail(field, fmt.Sprintf("The %s field is required.", Label(field)))
		}
	}
}

// String returns the string value of field, or "" when absent or not a string.
func (a *Args) String(field string) string {
	if !a.Present(field) {
		return ""
	}
	s, ok := a.values[field].(string)
	if !ok {
		a.Fail(field, fmt.Sprintf("The %s field must be a string.", Label(field)))
		return ""
	}
	return s
}

// OptionalString returns nil when field was not sent or is null, so callers
// can tell "leave unchanged" from "set to empty".
func (a *Args) OptionalString(field string) *string {
	v, ok := a.values[field]
	if !ok || v == nil {
		return nil
	}
	s, isString := v.(string)
	if !isString {
		a.Fail(field, fmt.Sprintf("The %s field must be a string.", Label(field)))
		return nil
	}
	return &s
}

// MaxLength records a failure when the value of field exceeds max characters.
func (a *Args) MaxLength(field string, max int) {
	if s, ok := a.values[field].(string); ok && len([]rune(s)) > max {
		a.Fail(field, fmt.Sprintf("The %s field must not be greater than %d characters.", Label(field), max))
	}
}

// Int returns the integer value of field, or def when absent. JSON numbers
// arrive as float64; integral floats and numeric strings are accepted.
func (a *Args) Int(field string, def int) int {
	if !a.Present(field) {
		return def
	}
	n, ok := toInt(a.values[field])
	if !ok {
		a.Fail(field, fmt.Sprintf("The %s field must be an integer.", Label(field)))
		return def
	}
	return n
}

// IntRange reads field like Int and checks it lies in [min, max].
func (a *Args) IntRange(field string, def, min, max int) int {
	present := a.Present(field)
	n := a.Int(field, def)
	if !present || a.Failed(field) {
		return n
	}
	switch {
	case n < min:
		a.Fail(field, fmt.Sprintf("The %s field must be at least %d.", Label(field), min))
	case n > max:
		a.Fail(field, fmt.Sprintf("The %s field must not be greater than %d.", Label(field), max))
	}
	return n
}

// Bool returns the boolean value of field. Accepted values are true, false,
// 1, 0, "1", "0", "true" and "false".
func (a *Args) Bool(field string) bool {
	if !a.Present(field) {
		return false
	}
	switch v := a.values[field].(type) {
	case bool:
		return v
	case float64:
		if v == 0 || v == 1 {
			return v == 1
		}
	case string:
		switch v {
		case "1", "true":
			return true
		case "0", "false":
			return false
		}
	}
	a.Fail(field, fmt.Sprintf("The %s field must be true or false.", Label(field)))
	return false
}

// Strings returns the string elements of an array field.
func (a *Args) Strings(field string) []string {
	if !a.Present(field) {
		return nil
	}
	list, ok := a.values[field].([]any)
	if !ok {
		a.Fail(field, fmt.Sprintf("The %s field must be an array.", Label(field)))
		return nil
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok || s == "" {
			a.Fail(fmt.Sprintf("%s.%d", field, i), fmt.Sprintf("The %s.%d field must be a non-empty string.", field, i))
			continue
		}
		out = append(out, s)
	}
	return out
}

// OneOf records a failure when a present field is not one of allowed.
func (a *Args) OneOf(field string, allowed ...string) {
	if !a.Present(field) {
		return
	}
	value, _ := a.values[field].(string)
	for _, candidate := range allowed {
		if value == candidate {
			return
		}
	}
	a.Fail(field, fmt.Sprintf("The selected %s is invalid.", Label(field)))
}

// Err returns nil when every read succeeded, or a VALIDATION_ERROR whose
// message is the first failure and whose context lists all of them.
func (a *Args) Err() error {
	if len(a.fields) == 0 {
		return nil
	}
	first := a.errors[a.fields[0]][0]
	message := first
	if extra := a.count() - 1; extra > 0 {
		suffix := "error"
		if extra > 1 {
			suffix = "errors"
		}
		message = fmt.Sprintf("%s (and %d more %s)", first, extra, suffix)
	}

	details := make(map[string]any, len(a.fields))
	for _, field := range a.fields {
		details[field] = a.errors[field]
	}
	return apierror.New(apierror.CodeValidation, http.StatusUnprocessableEntity, message).
		WithContext("errors", details)
}

func (a *Args) count() int {
	n := 0
	for _, msgs := range a.errors {
		n += len(msgs)
	}
	return n
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}
