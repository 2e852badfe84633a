package domain

import (
	"strings"
)

// Attribute field prefixes used in client field names. Global attributes are
// backed by a shared taxonomy; local attributes are free text scoped to one
// product.
const (
	GlobalAttributePrefix = "pa_"
	LocalAttributePrefix  = "la_"
)

// CoreFieldAliasMarker prefixes meta keys that alias a core product field.
// Such keys are rerouted before storage and never persisted literally.
const CoreFieldAliasMarker = "___"

// Attribute is one attribute owned by a standalone product. Value type with
// explicit copy; never share a mutable instance between products.
type Attribute struct {
	TaxonomyID      int64    `json:"taxonomy_id"`
	Taxonomy        string   `json:"taxonomy,omitempty"`
	Name            string   `json:"name"`
	Options         []string `json:"options"`
	Visible         bool     `json:"visible"`
	UsedForVariants bool     `json:"variation"`
	Position        int      `json:"position"`
}

// IsGlobal reports whether the attribute is backed by a shared taxonomy.
func (a Attribute) IsGlobal() bool {
	return a.Taxonomy != ""
}

// Clone returns a deep copy so callers can mutate without affecting the
// original (copy-on-write).
func (a Attribute) Clone() Attribute {
	cloned := a
	cloned.Options = append([]string(nil), a.Options...)
	return cloned
}

// SplitOptions normalizes an options value that may arrive either as a
// literal list or as one pipe-delimited string: split on "|", trim, drop
// empties and de-duplicate preserving first occurrence.
func SplitOptions(raw string) []string {
	parts := strings.Split(raw, "|")
	seen := make(map[string]struct{}, len(parts))
	options := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		options = append(options, part)
	}
	return options
}

// Slugify reduces a value to its slug form: lowercased, non-alphanumerics
// collapsed to single dashes.
func Slugify(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	var b strings.Builder
	lastDash := false
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// JoinTextAttributes joins option values into the canonical single-value
// text form used for variation attribute values.
func JoinTextAttributes(options []string) string {
	return strings.Join(options, " | ")
}

// HumanizeAttributeName capitalizes the first letter of a free-form
// attribute key for display.
func HumanizeAttributeName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
