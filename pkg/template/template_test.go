package template

import "testing"

func TestExpand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		appName string
		want    string
	}{
		{
			name:    "simple substitution",
			input:   "/var/www/{{APPLICATION_NAME}}/htdocs",
			appName: "shop",
			want:    "/var/www/shop/htdocs",
		},
		{
			name:    "multiple occurrences",
			input:   "{{APPLICATION_NAME}}_{{APPLICATION_NAME}}",
			appName: "x",
			want:    "x_x",
		},
		{
			name:    "empty app name leaves token",
			input:   "db_{{APPLICATION_NAME}}",
			appName: "",
			want:    "db_{{APPLICATION_NAME}}",
		},
		{
			name:    "case sensitive",
			input:   "{{application_name}}",
			appName: "shop",
			want:    "{{application_name}}",
		},
		{
			name:    "non-recursive",
			input:   "{{APPLICATION_NAME}}",
			appName: "{{WEBID}}",
			want:    "{{WEBID}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Expand(tt.input, tt.appName)
			if got != tt.want {
				t.Errorf("Expand(%q, %q) = %q, want %q", tt.input, tt.appName, got, tt.want)
			}
		})
	}
}

func TestExpandSQL(t *testing.T) {
	sql := []byte("CREATE DATABASE {{APPLICATION_NAME}}_{{WEBID}}; -- {{UNKNOWN}}")

	got := string(ExpandSQL(sql, "shop", "demo"))
	want := "CREATE DATABASE shop_demo; -- {{UNKNOWN}}"
	if got != want {
		t.Errorf("ExpandSQL = %q, want %q", got, want)
	}

	// Without a tenant context {{WEBID}} passes through.
	got = string(ExpandSQL(sql, "shop", ""))
	want = "CREATE DATABASE shop_{{WEBID}}; -- {{UNKNOWN}}"
	if got != want {
		t.Errorf("ExpandSQL (no webid) = %q, want %q", got, want)
	}
}

func TestExpandTree(t *testing.T) {
	tree := map[string]any{
		"path": "/srv/{{APPLICATION_NAME}}",
		"nested": map[string]any{
			"name": "{{APPLICATION_NAME}}_db",
		},
		"list":  []any{"{{APPLICATION_NAME}}", 42.0, true},
		"count": 3.0,
	}

	ExpandTree(tree, "shop")

	if tree["path"] != "/srv/shop" {
		t.Errorf("path = %v", tree["path"])
	}
	if tree["nested"].(map[string]any)["name"] != "shop_db" {
		t.Errorf("nested name = %v", tree["nested"].(map[string]any)["name"])
	}
	list := tree["list"].([]any)
	if list[0] != "shop" || list[1] != 42.0 || list[2] != true {
		t.Errorf("list = %v", list)
	}
}
