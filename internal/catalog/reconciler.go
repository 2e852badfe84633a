package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/gridworks/catalogbridge/internal/domain"
	"github.com/gridworks/catalogbridge/internal/repository"
)

// AttributeEdit is one raw attributes_data entry from the client. Key is
// either an attribute field name or an attribute field name with a
// property suffix.
type AttributeEdit struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Property suffixes carried on attribute edit keys.
const (
	visibleSuffix         = "_visible_on_product_page"
	usedForVariantsSuffix = "_used_for_variations"
)

// attributeChange is the grouped pending change for one attribute.
type attributeChange struct {
	options         []string
	hasOptions      bool
	visible         *bool
	usedForVariants *bool
}

// Reconciler applies attribute edits to a product, creating taxonomies and
// terms lazily for global attributes.
type Reconciler struct {
	terms repository.TermRepository
}

// NewReconciler creates an attribute reconciler.
func NewReconciler(terms repository.TermRepository) *Reconciler {
	return &Reconciler{terms: terms}
}

// Apply reconciles the given edits into the product's attribute state. The
// product is mutated in place; persistence is left to the caller so one
// save covers all edits in a request.
func (r *Reconciler) Apply(ctx context.Context, product *domain.Product, edits []AttributeEdit) error {
	keys, changes := groupEdits(edits)

	for _, key := range keys {
		change := changes[key]

		isLocal := strings.HasPrefix(key, domain.LocalAttributePrefix)
		if !isLocal {
			if err := r.canonicalizeTerms(ctx, key, change); err != nil {
				return err
			}
		}

		if err := r.applyChange(ctx, product, key, change); err != nil {
			return err
		}
	}
	return nil
}

// groupEdits collapses suffixed property edits and option edits into one
// change per attribute, preserving first-appearance order.
func groupEdits(edits []AttributeEdit) ([]string, map[string]*attributeChange) {
	var keys []string
	changes := make(map[string]*attributeChange, len(edits))

	get := func(key string) *attributeChange {
		if change, ok := changes[key]; ok {
			return change
		}
		change := &attributeChange{}
		changes[key] = change
		keys = append(keys, key)
		return change
	}

	for _, edit := range edits {
		switch {
		case strings.HasSuffix(edit.Key, visibleSuffix):
			key := strings.TrimSuffix(edit.Key, visibleSuffix)
			value := parseBool(edit.Value)
			get(key).visible = &value
		case strings.HasSuffix(edit.Key, usedForVariantsSuffix):
			key := strings.TrimSuffix(edit.Key, usedForVariantsSuffix)
			value := parseBool(edit.Value)
			get(key).usedForVariants = &value
		default:
			change := get(edit.Key)
			change.options = domain.SplitOptions(edit.Value)
			change.hasOptions = true
		}
	}
	return keys, changes
}

// canonicalizeTerms ensures the global attribute taxonomy and its option
// terms exist, rewriting each option to the canonical stored name.
func (r *Reconciler) canonicalizeTerms(ctx context.Context, name string, change *attributeChange) error {
	label := strings.TrimPrefix(name, domain.GlobalAttributePrefix)
	if _, err := r.terms.EnsureAttributeTaxonomy(ctx, name, label); err != nil {
		return fmt.Errorf("failed to register attribute %q: %w", name, err)
	}

	if !change.hasOptions {
		return nil
	}

	for i, option := range change.options {
		term, err := r.terms.EnsureTerm(ctx, name, option, 0)
		if err != nil {
			return fmt.Errorf("failed to ensure term %q for %q: %w", option, name, err)
		}
		change.options[i] = term.Name
	}
	return nil
}

func (r *Reconciler) applyChange(ctx context.Context, product *domain.Product, name string, change *attributeChange) error {
	isLocal := strings.HasPrefix(name, domain.LocalAttributePrefix)
	attributeKey := name
	if isLocal {
		attributeKey = strings.TrimPrefix(name, domain.LocalAttributePrefix)
	}

	if product.IsVariation() {
		return r.applyVariationChange(product, attributeKey, change)
	}

	attributes := make(map[string]domain.Attribute, len(product.Attributes)+1)
	for key, attr := range product.Attributes {
		attributes[key] = attr
	}

	attr, exists := attributes[attributeKey]
	if exists {
		attr = attr.Clone()
	} else {
		attr = r.newAttribute(ctx, attributeKey)
	}

	changed := false

	if change.visible != nil {
		attr.Visible = *change.visible
		changed = true
	}
	if change.usedForVariants != nil {
		attr.UsedForVariants = *change.usedForVariants
		changed = true
	}

	removed := false
	if change.hasOptions {
		if len(change.options) > 0 {
			attr.Options = change.options
		} else {
			delete(attributes, attributeKey)
			removed = true
		}
		changed = true
	}

	if !changed {
		return nil
	}

	if !removed {
		attributes[attributeKey] = attr
	}
	product.SetAttributes(attributes)

	// Global attribute assignments are mirrored as term relationships so
	// listings can filter on them.
	if !isLocal && change.hasOptions && product.ID != 0 {
		termIDs := make([]int64, 0, len(change.options))
		for _, option := range change.options {
			term, found, err := r.terms.TermByName(ctx, attributeKey, option)
			if err != nil {
				return fmt.Errorf("failed to look up term %q: %w", option, err)
			}
			if found {
				termIDs = append(termIDs, term.ID)
			}
		}
		if err := r.terms.SetObjectTerms(ctx, product.ID, attributeKey, termIDs); err != nil {
			return fmt.Errorf("failed to assign %q terms: %w", attributeKey, err)
		}
	}

	return nil
}

// applyVariationChange collapses the options to the single slugified value
// a variation carries for the attribute.
func (r *Reconciler) applyVariationChange(product *domain.Product, attributeKey string, change *attributeChange) error {
	if !change.hasOptions {
		return nil
	}

	values := make(map[string]string, len(product.AttributeValues)+1)
	for key, value := range product.AttributeValues {
		values[key] = value
	}
	values[attributeKey] = domain.Slugify(domain.JoinTextAttributes(change.options))
	product.SetAttributeValues(values)
	return nil
}

// newAttribute builds the default shape for an attribute seen for the
// first time on this product.
func (r *Reconciler) newAttribute(ctx context.Context, attributeKey string) domain.Attribute {
	attr := domain.Attribute{
		Visible:         true,
		UsedForVariants: true,
		Position:        0,
	}

	taxonomy, found, err := r.terms.AttributeTaxonomyByName(ctx, attributeKey)
	if err == nil && found {
		attr.Taxonomy = taxonomy.Name
		attr.TaxonomyID = taxonomy.ID
		attr.Name = taxonomy.Name
	} else {
		attr.Name = domain.HumanizeAttributeName(attributeKey)
	}
	return attr
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
