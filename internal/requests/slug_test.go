package requests

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func never(string) bool { return false }

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"First Church", "first_church"},
		{"  Velocity PT  ", "velocity_pt"},
		{"Route 66 Diner", "route_66_diner"},
		{"!!!", "___"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.name))
		})
	}
}

func TestOrganizationID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		taken    func(string) bool
		wantSlug string // empty means a generated id is expected
	}{
		{"clean slug", "First Church", never, "first_church"},
		{"punctuation only", "!!!", never, ""},
		{"empty", "", never, ""},
		{"leading underscore", "(Grace) Chapel", never, ""},
		{"trailing underscore", "Grace Chapel.", never, ""},
		{"doubled underscore", "St. Mary", never, ""},
		{"path separators become underscores", "a/b", never, "a_b"},
		{"too long", strings.Repeat("a", 65), never, ""},
		{"max length", strings.Repeat("a", 64), never, strings.Repeat("a", 64)},
		{"already taken", "First Church", func(s string) bool { return s == "first_church" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := OrganizationID(tt.input, tt.taken)
			assert.NotEmpty(t, id)
			assert.NotContains(t, id, "/")
			assert.NotContains(t, id, `\`)
			assert.False(t, strings.HasPrefix(id, "_"))
			assert.False(t, strings.HasSuffix(id, "_"))
			if tt.wantSlug != "" {
				assert.Equal(t, tt.wantSlug, id)
				return
			}
			_, err := uuid.Parse(id)
			assert.NoError(t, err, "expected generated id, got %q", id)
		})
	}
}
