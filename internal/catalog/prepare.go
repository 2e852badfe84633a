package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gridworks/catalogbridge/internal/domain"
	"github.com/gridworks/catalogbridge/internal/repository"
)

// Preparer applies a raw write payload onto a product before it is
// persisted: type changes, attribute reconciliation, term-path resolution
// and core-alias meta rerouting.
type Preparer struct {
	products   repository.ProductRepository
	terms      repository.TermRepository
	reconciler *Reconciler
	transition *TransitionManager
}

// NewPreparer creates a write preparer.
func NewPreparer(products repository.ProductRepository, terms repository.TermRepository, reconciler *Reconciler, transition *TransitionManager) *Preparer {
	return &Preparer{
		products:   products,
		terms:      terms,
		reconciler: reconciler,
		transition: transition,
	}
}

var commaSplit = regexp.MustCompile(`\s*,\s*`)
var pipeSplit = regexp.MustCompile(`\s*\|\s*`)
var pathSplit = regexp.MustCompile(`\s*>\s*`)

// Prepare mutates the product according to the payload and returns the
// product to persist, which may be a re-instantiated record after a type
// change.
func (p *Preparer) Prepare(ctx context.Context, product *domain.Product, payload map[string]any) (*domain.Product, error) {
	// type is an accepted alias for product_type.
	if _, hasProductType := payload["product_type"]; !hasProductType {
		if t, ok := stringParam(payload, "type"); ok && t != "" {
			payload["product_type"] = t
		}
	}

	requestedType, hasType := stringParam(payload, "product_type")

	if hasType && requestedType != "" {
		changed, err := p.transition.ChangeType(ctx, product, requestedType)
		if err != nil {
			return nil, err
		}
		product = changed
	}

	for _, field := range []string{"formatted_upsell_ids", "formatted_cross_sell_ids"} {
		if value, ok := stringParam(payload, field); ok {
			metaKey := "_" + strings.TrimPrefix(field, "formatted_")
			product.SetMeta(metaKey, strings.Join(splitNonEmpty(commaSplit, value), ","))
		}
	}

	if edits := attributeEdits(payload); len(edits) > 0 {
		if err := p.reconciler.Apply(ctx, product, edits); err != nil {
			return nil, err
		}
	}

	// "standard" is the display form of the empty tax class.
	if value, ok := stringParam(payload, "tax_class"); ok {
		if value == "standard" {
			value = ""
		}
		product.SetMeta("_tax_class", value)
	}

	if value, ok := stringParam(payload, "formatted_categories"); ok {
		termIDs, err := p.resolveTermPaths(ctx, value, domain.TaxonomyCategory)
		if err != nil {
			return nil, err
		}
		if err := p.terms.SetObjectTerms(ctx, product.ID, domain.TaxonomyCategory, termIDs); err != nil {
			return nil, fmt.Errorf("failed to set categories: %w", err)
		}
	}

	if value, ok := stringParam(payload, "formatted_tags"); ok {
		termIDs, err := p.resolveTermPaths(ctx, value, domain.TaxonomyTag)
		if err != nil {
			return nil, err
		}
		if err := p.terms.SetObjectTerms(ctx, product.ID, domain.TaxonomyTag, termIDs); err != nil {
			return nil, fmt.Errorf("failed to set tags: %w", err)
		}
	}

	if err := p.validateType(ctx, product, requestedType, hasType); err != nil {
		return nil, err
	}

	for _, key := range []string{"width", "height", "length"} {
		if value, ok := stringParam(payload, key); ok {
			product.SetMeta("_"+key, value)
		}
	}
	if value, ok := int64Param(payload, "parent_id"); ok {
		product.Set("parent_id", value)
	}

	if err := p.rerouteAliasMeta(product, payload); err != nil {
		return nil, err
	}

	return product, nil
}

// validateType enforces the write-path type taxonomy rules.
func (p *Preparer) validateType(ctx context.Context, product *domain.Product, requestedType string, hasType bool) error {
	if hasType && requestedType != "" {
		if requestedType == domain.TypeVariation {
			return nil
		}
		if _, known := domain.KnownProductTypes()[requestedType]; !known {
			return domain.ErrInvalidProductType
		}
		return nil
	}

	storedType := p.storedType(ctx, product)
	if storedType == "" {
		return domain.ErrUndeterminedProductType
	}
	if product.Type != "" && product.Type != storedType {
		return domain.ErrProductTypeMismatch
	}
	return nil
}

func (p *Preparer) storedType(ctx context.Context, product *domain.Product) string {
	if product.IsVariation() {
		return domain.TypeVariation
	}
	terms, err := p.terms.ObjectTerms(ctx, product.ID, domain.TaxonomyProductType)
	if err != nil || len(terms) == 0 {
		return ""
	}
	return terms[0].Slug
}

// resolveTermPaths parses "Parent > Child | Other" into term ids, creating
// missing terms at each level of the hierarchy.
func (p *Preparer) resolveTermPaths(ctx context.Context, formatted, taxonomy string) ([]int64, error) {
	termIDs := []int64{}
	if strings.TrimSpace(formatted) == "" {
		return termIDs, nil
	}

	for _, path := range splitNonEmpty(pipeSplit, formatted) {
		var parentID int64
		var deepest int64
		for _, name := range splitNonEmpty(pathSplit, path) {
			term, err := p.terms.EnsureTerm(ctx, taxonomy, name, parentID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve term %q: %w", name, err)
			}
			parentID = term.ID
			deepest = term.ID
		}
		if deepest != 0 {
			termIDs = append(termIDs, deepest)
		}
	}
	return termIDs, nil
}

// rerouteAliasMeta stores ___-prefixed meta_data entries under their plain
// key; everything else is stored as-is.
func (p *Preparer) rerouteAliasMeta(product *domain.Product, payload map[string]any) error {
	raw, ok := payload["meta_data"]
	if !ok {
		return nil
	}
	entries, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("meta_data must be a list of key/value objects")
	}

	for _, entry := range entries {
		pair, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		key, _ := pair["key"].(string)
		if key == "" {
			continue
		}
		value := fmt.Sprintf("%v", pair["value"])

		if strings.HasPrefix(key, domain.CoreFieldAliasMarker) {
			product.SetMeta(strings.TrimPrefix(key, domain.CoreFieldAliasMarker), value)
			continue
		}
		product.SetMeta(key, value)
	}
	return nil
}

// attributeEdits decodes the attributes_data parameter.
func attributeEdits(payload map[string]any) []AttributeEdit {
	raw, ok := payload["attributes_data"]
	if !ok {
		return nil
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil
	}

	edits := make([]AttributeEdit, 0, len(entries))
	for _, entry := range entries {
		pair, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		key, _ := pair["key"].(string)
		if key == "" {
			continue
		}
		edits = append(edits, AttributeEdit{Key: key, Value: fmt.Sprintf("%v", pair["value"])})
	}
	return edits
}

func splitNonEmpty(re *regexp.Regexp, value string) []string {
	parts := re.Split(strings.TrimSpace(value), -1)
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func stringParam(payload map[string]any, key string) (string, bool) {
	raw, ok := payload[key]
	if !ok {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		if v {
			return "yes", true
		}
		return "no", true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

func int64Param(payload map[string]any, key string) (int64, bool) {
	raw, ok := payload[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		var id int64
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &id); err == nil {
			return id, true
		}
	}
	return 0, false
}
