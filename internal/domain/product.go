package domain

import (
	"time"
)

// Kind distinguishes the two storage representations a catalog record can take.
type Kind string

const (
	KindProduct   Kind = "product"
	KindVariation Kind = "variation"
)

// ProductType is the classification term assigned to standalone products.
// Variations carry no type term; their type is implied by the parent linkage.
const (
	TypeSimple    = "simple"
	TypeGrouped   = "grouped"
	TypeExternal  = "external"
	TypeVariable  = "variable"
	TypeVariation = "variation"
)

// KnownProductTypes lists every type a product may transition to.
func KnownProductTypes() map[string]string {
	return map[string]string{
		TypeSimple:    "Simple",
		TypeGrouped:   "Grouped",
		TypeExternal:  "External",
		TypeVariable:  "Variable",
		TypeVariation: "Variation",
	}
}

// Product represents one catalog record: either a standalone product or a
// variation belonging to a parent product.
type Product struct {
	ID               int64
	ParentID         int64
	Kind             Kind
	Type             string
	Title            string
	Slug             string
	Description      string
	ShortDescription string
	Status           string
	MenuOrder        int
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Meta holds free-form key/value pairs backed by the product_meta table.
	Meta map[string]string

	// Attributes is the attribute set of a standalone product, keyed by
	// attribute key (taxonomy name for global, plain name for local).
	Attributes map[string]Attribute

	// AttributeValues holds a variation's single resolved value per
	// attribute name. Variations do not own an attribute set.
	AttributeValues map[string]string

	// RemovedMeta tracks meta keys deleted in this request.
	RemovedMeta []string

	pending map[string]any
}

// IsVariation reports whether the product is stored as a child variation.
func (p *Product) IsVariation() bool {
	return p.Kind == KindVariation
}

// Set records a pending field change and keeps it until the product is
// persisted or the changes are replayed onto a re-instantiated product.
func (p *Product) Set(field string, value any) {
	if p.pending == nil {
		p.pending = make(map[string]any)
	}
	p.pending[field] = value

	switch field {
	case "title":
		if v, ok := value.(string); ok {
			p.Title = v
		}
	case "slug":
		if v, ok := value.(string); ok {
			p.Slug = v
		}
	case "description":
		if v, ok := value.(string); ok {
			p.Description = v
		}
	case "short_description":
		if v, ok := value.(string); ok {
			p.ShortDescription = v
		}
	case "status":
		if v, ok := value.(string); ok {
			p.Status = v
		}
	case "parent_id":
		if v, ok := value.(int64); ok {
			p.ParentID = v
		}
	case "menu_order":
		if v, ok := value.(int); ok {
			p.MenuOrder = v
		}
	}
}

// SetMeta records a meta change on the product.
func (p *Product) SetMeta(key, value string) {
	if p.Meta == nil {
		p.Meta = make(map[string]string)
	}
	p.Meta[key] = value
	p.Set("meta:"+key, value)
}

// SetAttributes replaces the attribute set and marks it pending.
func (p *Product) SetAttributes(attrs map[string]Attribute) {
	p.Attributes = attrs
	p.Set("attributes", attrs)
}

// SetAttributeValues replaces a variation's resolved values and marks them pending.
func (p *Product) SetAttributeValues(values map[string]string) {
	p.AttributeValues = values
	p.Set("attribute_values", values)
}

// Changes returns the pending, unsaved field changes.
func (p *Product) Changes() map[string]any {
	out := make(map[string]any, len(p.pending))
	for k, v := range p.pending {
		out[k] = v
	}
	return out
}

// ApplyChanges replays a pending-change set onto the product. Used after a
// type transition re-instantiates the record so edits made earlier in the
// same request survive the representation swap.
func (p *Product) ApplyChanges(changes map[string]any) {
	for field, value := range changes {
		if len(field) > 5 && field[:5] == "meta:" {
			if v, ok := value.(string); ok {
				p.SetMeta(field[5:], v)
			}
			continue
		}
		switch field {
		case "attributes":
			if v, ok := value.(map[string]Attribute); ok {
				p.SetAttributes(v)
			}
		case "attribute_values":
			if v, ok := value.(map[string]string); ok {
				p.SetAttributeValues(v)
			}
		default:
			p.Set(field, value)
		}
	}
}

// ClearChanges drops the pending change set after a successful persist.
func (p *Product) ClearChanges() {
	p.pending = nil
}

// HasChanges reports whether any edit is pending.
func (p *Product) HasChanges() bool {
	return len(p.pending) > 0
}
