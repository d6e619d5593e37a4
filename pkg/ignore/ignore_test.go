package ignore

import "testing"

func TestMatch(t *testing.T) {
	m := New(
		[]string{"*.tmp", "Thumbs.db", "config?.ini"},
		[]string{"node_modules", ".git", "build*"},
		[]string{".log", ".bak"},
		false,
	)

	tests := []struct {
		rel  string
		want bool
	}{
		{"src/app.js", false},
		{"src/app.tmp", true},
		{"Thumbs.db", true},
		{"deep/path/Thumbs.db", true},
		{"config1.ini", true},
		{"config12.ini", false},
		{"node_modules/lib/index.js", true},
		{"src/node_modules/x.js", true},
		{".git/HEAD", true},
		{"build-output/a.js", true},
		{"server.log", true},
		{"logs/server.log", true},
		{"server.LOG", false},
		{"data.bak", true},
		{"data.bakx", false},
		{"readme", false},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			if got := m.Match(tt.rel); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}
}

func TestMatchCaseInsensitive(t *testing.T) {
	m := New([]string{"*.TMP"}, []string{"Cache"}, []string{".Log"}, true)

	for _, rel := range []string{"a.tmp", "A.TMP", "CACHE/x.txt", "cache/x.txt", "run.log", "run.LOG"} {
		if !m.Match(rel) {
			t.Errorf("Match(%q) = false, want true", rel)
		}
	}
}

func TestMatchNegatedClass(t *testing.T) {
	m := New([]string{"[!a]*.txt"}, nil, nil, false)

	if !m.Match("b.txt") {
		t.Error("b.txt should match [!a]*.txt")
	}
	if m.Match("a.txt") {
		t.Error("a.txt should not match [!a]*.txt")
	}
}

func TestMatchDir(t *testing.T) {
	m := New([]string{"*.txt"}, []string{"vendor"}, []string{".txt"}, false)

	if !m.MatchDir("vendor") {
		t.Error("vendor should match as directory")
	}
	if !m.MatchDir("src/vendor/pkg") {
		t.Error("nested vendor should match")
	}
	// File patterns and extensions never apply to directories.
	if m.MatchDir("notes.txt") {
		t.Error("directory named notes.txt should not match file tiers")
	}
}

func TestWindowsRoot(t *testing.T) {
	tests := []struct {
		root string
		want bool
	}{
		{`C:\inetpub\wwwroot`, true},
		{`\\fileserver\share`, true},
		{"//fileserver/share", true},
		{"/var/www", false},
		{"relative/path", false},
	}

	for _, tt := range tests {
		if got := WindowsRoot(tt.root); got != tt.want {
			t.Errorf("WindowsRoot(%q) = %v, want %v", tt.root, got, tt.want)
		}
	}
}
