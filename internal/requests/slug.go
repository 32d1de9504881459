package requests

import (
	"strings"

	"github.com/google/uuid"
)

const maxSlugLen = 64

// Slugify lowercases name and maps every character outside [a-z0-9] to an
// underscore.
func Slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// usableSlug reports whether slug can serve as an organization id.
func usableSlug(slug string) bool {
	switch {
	case slug == "", len(slug) > maxSlugLen:
		return false
	case strings.ContainsAny(slug, `/\`):
		return false
	case strings.HasPrefix(slug, "_"), strings.HasSuffix(slug, "_"):
		return false
	case strings.Contains(slug, "__"):
		return false
	}
	return true
}

// OrganizationID derives the id for a new organization. taken reports
// whether an id is already in use; unusable or taken slugs fall back to a
// random UUID.
func OrganizationID(name string, taken func(string) bool) string {
	slug := Slugify(name)
	if usableSlug(slug) && !taken(slug) {
		return slug
	}
	return uuid.NewString()
}
