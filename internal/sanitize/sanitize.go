package sanitize

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
)

// FieldError names the field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// String converts scalars to text and trims it. A required field that ends
// up empty is an error; an optional one normalizes to "".
func String(v any, field string, required bool) (string, error) {
	s, err := scalar(v, field)
	if err != nil {
		return "", err
	}
	s = strings.TrimSpace(s)
	if s == "" && required {
		return "", &FieldError{Field: field, Reason: "is required"}
	}
	return s, nil
}

func scalar(v any, field string) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return "", &FieldError{Field: field, Reason: fmt.Sprintf("must be a scalar, got %T", v)}
	}
}

// Emails accepts a comma or semicolon separated string, a list of strings
// or a list of {"email": ...} objects. Every entry must be a bare address.
func Emails(v any, field string) ([]string, error) {
	var raw []string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		raw = strings.FieldsFunc(t, func(r rune) bool { return r == ',' || r == ';' })
	case []string:
		raw = t
	case []any:
		for _, item := range t {
			switch it := item.(type) {
			case string:
				raw = append(raw, it)
			case map[string]any:
				s, err := String(it["email"], field, true)
				if err != nil {
					return nil, err
				}
				raw = append(raw, s)
			default:
				return nil, &FieldError{Field: field, Reason: fmt.Sprintf("has an invalid entry of type %T", item)}
			}
		}
	default:
		return nil, &FieldError{Field: field, Reason: fmt.Sprintf("must be a list of emails, got %T", v)}
	}

	emails := make([]string, 0, len(raw))
	for _, r := range raw {
		s := strings.TrimSpace(r)
		if s == "" {
			continue
		}
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s {
			return nil, &FieldError{Field: field, Reason: fmt.Sprintf("has an invalid email %q", s)}
		}
		emails = append(emails, addr.Address)
	}
	return emails, nil
}

// Strings accepts a single string or a list of scalars.
func Strings(v any, field string) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		items := make([]any, len(t))
		for i, s := range t {
			items[i] = s
		}
		return Strings(items, field)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, err := String(item, field, false)
			if err != nil {
				return nil, err
			}
			if s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		s, err := String(v, field, false)
		if err != nil || s == "" {
			return nil, err
		}
		return []string{s}, nil
	}
}
