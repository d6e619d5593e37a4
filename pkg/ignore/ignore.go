package ignore

import (
	"path"
	"strings"
)

// Matcher filters relative paths against three tiers of rules: folder
// patterns matched against every path segment, file patterns matched
// against the final segment, and extension strings (leading dot included)
// compared against the final segment's extension. Patterns use shell-style
// wildcards: *, ?, character classes [...] and negated [!...].
type Matcher struct {
	files           []string
	folders         []string
	extensions      []string
	caseInsensitive bool
}

// New builds a matcher. caseInsensitive should be true for Windows roots.
func New(files, folders, extensions []string, caseInsensitive bool) *Matcher {
	m := &Matcher{caseInsensitive: caseInsensitive}
	for _, p := range files {
		m.files = append(m.files, m.fold(negatedClasses(p)))
	}
	for _, p := range folders {
		m.folders = append(m.folders, m.fold(negatedClasses(p)))
	}
	for _, e := range extensions {
		m.extensions = append(m.extensions, m.fold(e))
	}
	return m
}

// WindowsRoot reports whether a root path looks like a Windows location
// (drive letter or UNC share), which makes matching case-insensitive.
func WindowsRoot(root string) bool {
	if strings.HasPrefix(root, `\\`) || strings.HasPrefix(root, "//") {
		return true
	}
	return len(root) >= 2 && root[1] == ':' &&
		(root[0] >= 'a' && root[0] <= 'z' || root[0] >= 'A' && root[0] <= 'Z')
}

// negatedClasses rewrites shell-style negated classes "[!...]" into the
// "[^...]" form that path.Match understands.
func negatedClasses(p string) string {
	return strings.ReplaceAll(p, "[!", "[^")
}

func (m *Matcher) fold(s string) string {
	if m.caseInsensitive {
		return strings.ToLower(s)
	}
	return s
}

// Match reports whether the slash-separated relative path is ignored.
func (m *Matcher) Match(rel string) bool {
	rel = m.fold(strings.Trim(rel, "/"))
	if rel == "" {
		return false
	}
	segments := strings.Split(rel, "/")
	final := segments[len(segments)-1]

	for _, seg := range segments {
		for _, pat := range m.folders {
			if ok, err := path.Match(pat, seg); err == nil && ok {
				return true
			}
		}
	}
	for _, pat := range m.files {
		if ok, err := path.Match(pat, final); err == nil && ok {
			return true
		}
	}
	if ext := path.Ext(final); ext != "" {
		for _, e := range m.extensions {
			if ext == e {
				return true
			}
		}
	}
	return false
}

// MatchDir reports whether a directory path is ignored. Only the folder
// tier applies; file patterns and extensions never match directories.
func (m *Matcher) MatchDir(rel string) bool {
	rel = m.fold(strings.Trim(rel, "/"))
	if rel == "" {
		return false
	}
	for _, seg := range strings.Split(rel, "/") {
		for _, pat := range m.folders {
			if ok, err := path.Match(pat, seg); err == nil && ok {
				return true
			}
		}
	}
	return false
}
