package template

import "strings"

// Placeholder tokens recognized by the agent. Substitution is plain textual
// replacement: case-sensitive, non-recursive, and unknown placeholders pass
// through untouched so they reach the server as written.
const (
	ApplicationName = "{{APPLICATION_NAME}}"
	WebID           = "{{WEBID}}"
)

// Expand substitutes {{APPLICATION_NAME}} in a single string. An empty
// application name leaves the token intact.
func Expand(s, appName string) string {
	if appName == "" {
		return s
	}
	return strings.ReplaceAll(s, ApplicationName, appName)
}

// ExpandSQL substitutes both placeholders in raw SQL bytes. The webid is
// only bound in per-tenant execution contexts; pass "" to leave {{WEBID}}
// untouched.
func ExpandSQL(sql []byte, appName, webid string) []byte {
	s := string(sql)
	if appName != "" {
		s = strings.ReplaceAll(s, ApplicationName, appName)
	}
	if webid != "" {
		s = strings.ReplaceAll(s, WebID, webid)
	}
	return []byte(s)
}

// ExpandTree walks a decoded JSON document and substitutes
// {{APPLICATION_NAME}} in every string value in place. This is template
// pass 1, run once after configuration loading.
func ExpandTree(v any, appName string) any {
	if appName == "" {
		return v
	}
	switch t := v.(type) {
	case string:
		return Expand(t, appName)
	case map[string]any:
		for k, e := range t {
			t[k] = ExpandTree(e, appName)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = ExpandTree(e, appName)
		}
		return t
	default:
		return v
	}
}
