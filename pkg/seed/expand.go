package seed

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/andybasham/aiagent/pkg/config"
)

// Password placeholders whose resolved values are bcrypt-hashed. Only
// these exact tokens hash; other placeholders containing "PASSWORD" pass
// through untouched.
const (
	placeholderPassword     = "{{PASSWORD}}"
	placeholderPasswordHash = "{{PASSWORD_HASH}}"
)

const bcryptCost = 10

// Scope is the JSON context of one emission. Parent is always the
// outermost document; Outer is the array element in nested-array mode;
// Inner is the innermost element (an object or a primitive), nil when the
// spec has no arrays.
type Scope struct {
	Parent map[string]any
	Outer  map[string]any
	Inner  any
}

// ExtractTemplate returns the region of script strictly between the first
// occurrence of begin and the following end mark, with surrounding
// block-comment delimiters trimmed.
func ExtractTemplate(script, begin, end string) (string, error) {
	i := strings.Index(script, begin)
	if i < 0 {
		return "", fmt.Errorf("begin mark %q not found", begin)
	}
	rest := script[i+len(begin):]
	j := strings.Index(rest, end)
	if j < 0 {
		return "", fmt.Errorf("end mark %q not found", end)
	}
	region := strings.TrimSpace(rest[:j])
	region = strings.TrimSpace(strings.TrimPrefix(region, "*/"))
	region = strings.TrimSpace(strings.TrimSuffix(region, "/*"))
	return region, nil
}

// Substitute resolves every binding against the scope and replaces its
// placeholder in the template. Missing fields fall back to the binding's
// default, then to the SQL token NULL with any surrounding single quotes
// in the template stripped.
func Substitute(tmpl string, bindings []config.VariableBinding, sc Scope) (string, error) {
	for _, b := range bindings {
		ph := normalizePlaceholder(b.Placeholder)

		v, ok := resolve(b, sc)
		if !ok && b.DefaultValue != nil {
			v, ok = *b.DefaultValue, true
		}
		if !ok || v == nil {
			tmpl = substituteNull(tmpl, ph)
			continue
		}

		lit, isString, err := formatScalar(v)
		if err != nil {
			return "", fmt.Errorf("binding %s: %w", ph, err)
		}
		if ph == placeholderPassword || ph == placeholderPasswordHash {
			lit, err = hashPassword(lit)
			if err != nil {
				return "", fmt.Errorf("binding %s: %w", ph, err)
			}
		} else if isString {
			lit = strings.ReplaceAll(lit, "'", "''")
		}
		tmpl = strings.ReplaceAll(tmpl, ph, lit)
	}
	return tmpl, nil
}

// resolve reads the binding's field from the appropriate scope level:
// "." is the innermost element itself, from_parent walks outward (outer
// element first, then the parent document), anything else reads the
// innermost available object.
func resolve(b config.VariableBinding, sc Scope) (any, bool) {
	if b.JSONField == "." {
		return sc.Inner, sc.Inner != nil
	}
	if b.FromParent {
		if sc.Outer != nil {
			if v, ok := lookupPath(sc.Outer, b.JSONField); ok {
				return v, true
			}
		}
		return lookupPath(sc.Parent, b.JSONField)
	}
	if sc.Inner != nil {
		m, ok := sc.Inner.(map[string]any)
		if !ok {
			return nil, false
		}
		return lookupPath(m, b.JSONField)
	}
	return lookupPath(sc.Parent, b.JSONField)
}

// lookupPath traverses a dot-notation path through nested objects, with
// numeric segments indexing into arrays.
func lookupPath(obj map[string]any, path string) (any, bool) {
	var current any = obj
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// substituteNull replaces the placeholder with the SQL token NULL. When
// the template quotes the placeholder ('{{X}}') the quotes are stripped so
// the emitted statement carries NULL, not 'NULL'.
func substituteNull(tmpl, placeholder string) string {
	tmpl = strings.ReplaceAll(tmpl, "'"+placeholder+"'", "NULL")
	return strings.ReplaceAll(tmpl, placeholder, "NULL")
}

// formatScalar renders a decoded JSON value as SQL literal text. The
// template is responsible for quoting strings.
func formatScalar(v any) (lit string, isString bool, err error) {
	switch t := v.(type) {
	case string:
		return t, true, nil
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10), false, nil
		}
		return strconv.FormatFloat(t, 'f', -1, 64), false, nil
	case bool:
		if t {
			return "1", false, nil
		}
		return "0", false, nil
	default:
		return "", false, fmt.Errorf("value %T is not a scalar", v)
	}
}

// hashPassword bcrypt-hashes a plaintext with cost 10 and emits the $2y$
// variant the destination application verifies against.
func hashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return "", err
	}
	// The Go library emits $2a$; the hash itself is identical under $2y$.
	return "$2y$" + string(hash[4:]), nil
}

func normalizePlaceholder(name string) string {
	if strings.HasPrefix(name, "{{") {
		return name
	}
	return "{{" + name + "}}"
}
