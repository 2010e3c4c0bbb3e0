package domain

import "strings"

// Slugify derives the tenant slug from a display name: lowercase, every run of
// characters outside [a-z0-9] collapsed to a single '-', leading/trailing '-' removed.
// An empty result means the name has no usable characters.
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// NormalizeEmail case-folds and trims an email address for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
