// Package query compiles client filter clauses into a store-agnostic
// CompiledQuery executed by the product repository.
package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gridworks/catalogbridge/internal/domain"
)

// numericColumns maps client field names to core numeric product columns.
var numericColumns = map[string]string{
	"id":         "id",
	"parent_id":  "parent_id",
	"menu_order": "menu_order",
}

// textColumns maps client field names to core text product columns.
var textColumns = map[string]string{
	"name":              "title",
	"description":       "description",
	"short_description": "short_description",
	"slug":              "slug",
}

// sortColumns maps sortable client fields to core columns; anything else
// sorts by meta value.
var sortColumns = map[string]string{
	"id":        "id",
	"parent_id": "parent_id",
	"name":      "title",
}

// Compile translates filter clauses, an optional sort and an optional
// full-text search term into a CompiledQuery. Unresolvable fields fall
// through to a generic meta condition rather than failing.
func Compile(clauses []domain.FilterClause, sort *domain.SortOption, search string) domain.CompiledQuery {
	compiled := domain.CompiledQuery{
		Kinds: []domain.Kind{domain.KindProduct, domain.KindVariation},
	}

	for _, clause := range clauses {
		if !clause.Active {
			continue
		}
		compileClause(&compiled, clause)
	}

	if search != "" {
		compiled.Search = search
	}

	compiled.Order = resolveOrder(sort)

	return compiled
}

func compileClause(compiled *domain.CompiledQuery, clause domain.FilterClause) {
	key := clause.Field
	originalKey := key
	if strings.HasPrefix(key, domain.CoreFieldAliasMarker) {
		key = strings.TrimPrefix(key, domain.CoreFieldAliasMarker)
	}

	// Meta-backed core fields filter on their storage key. An alias-marked
	// field already names the raw meta key and is left untouched.
	metaKey := key
	if key == originalKey {
		if stored, ok := domain.CoreMetaKeys[key]; ok {
			metaKey = stored
		}
	}

	from, to := rangeBounds(clause)

	// An explicit taxonomy on the clause takes a term-name search path.
	if clause.Taxonomy != "" && clause.Mode == domain.ModeContains {
		compiled.AddTaxGroup("AND", domain.TaxCondition{
			Taxonomy: clause.Taxonomy,
			Field:    domain.TermFieldSearch,
			Terms:    []string{clause.Query.First()},
			Operator: domain.TaxOperatorIn,
		})
		return
	}

	if clause.Mode == domain.ModeEmpty {
		compileEmpty(compiled, clause, key, metaKey)
		return
	}

	switch {
	case strings.HasPrefix(key, domain.LocalAttributePrefix):
		compileLocalAttribute(compiled, clause, key)
		return
	case strings.HasPrefix(key, domain.GlobalAttributePrefix):
		compiled.AddTaxGroup("AND", domain.TaxCondition{
			Taxonomy: key,
			Field:    domain.TermFieldName,
			Terms:    clause.Query.Values,
			Operator: domain.TaxOperatorIn,
		})
		return
	}

	if column, ok := numericColumns[key]; ok {
		compiled.AddFragment(fmt.Sprintf("p.%s BETWEEN ? AND ?", column), from, to)
		return
	}

	switch {
	case key == "product_type" && key == originalKey:
		if clause.Query.Contains(domain.TypeVariation) {
			compiled.Kinds = []domain.Kind{domain.KindVariation}
		} else {
			compiled.AddTaxGroup("AND", domain.TaxCondition{
				Taxonomy: domain.TaxonomyProductType,
				Field:    domain.TermFieldSlug,
				Terms:    clause.Query.Values,
				Operator: domain.TaxOperatorIn,
			})
		}
	case textColumns[key] != "":
		compiled.AddFragment(fmt.Sprintf("p.%s LIKE ?", textColumns[key]), "%"+clause.Query.First()+"%")
	case key == "backorders" || key == "manage_stock":
		compiled.AddMetaGroup("AND", domain.MetaCondition{
			Key:     metaKey,
			Values:  clause.Query.Values,
			Compare: domain.MetaCompareIn,
		})
	case key == "featured":
		operator := domain.TaxOperatorIn
		if clause.Query.Contains("no") {
			operator = domain.TaxOperatorNotIn
		}
		compiled.AddTaxGroup("AND", domain.TaxCondition{
			Taxonomy: domain.TaxonomyVisibility,
			Field:    domain.TermFieldSlug,
			Terms:    []string{"featured"},
			Operator: operator,
		})
	case key == "catalog_visibility":
		compileCatalogVisibility(compiled, clause)
	case key == "status":
		compiled.Statuses = append([]string(nil), clause.Query.Values...)
	case key == "images":
		compileImages(compiled, clause)
	case !clause.Query.IsEmpty():
		compare := domain.MetaCompareLike
		if clause.Query.List {
			compare = domain.MetaCompareIn
		}
		compiled.AddMetaGroup("AND", domain.MetaCondition{
			Key:     metaKey,
			Values:  clause.Query.Values,
			Compare: compare,
		})
	case clause.Type == "numeric" || clause.Mode == domain.ModeRange:
		compiled.AddMetaGroup("AND", domain.MetaCondition{
			Key:     metaKey,
			Values:  []string{formatBound(from), formatBound(to)},
			Compare: domain.MetaCompareBetween,
		})
	}

	// "standard" tax class is stored as an absent or empty value, so the
	// empty-value condition is OR-ed in alongside the literal match.
	if metaKey == "_tax_class" && clause.Query.Contains("standard") {
		compiled.AddMetaGroup("OR", emptyMetaConditions(metaKey)...)
	}
}

func compileEmpty(compiled *domain.CompiledQuery, clause domain.FilterClause, key, metaKey string) {
	if column, ok := textColumns[key]; ok {
		compiled.AddFragment(fmt.Sprintf("(p.%s IS NULL OR p.%s = '')", column, column))
		return
	}
	if column, ok := numericColumns[key]; ok {
		compiled.AddFragment(fmt.Sprintf("(p.%s IS NULL OR p.%s = 0)", column, column))
		return
	}
	if clause.Taxonomy != "" {
		compiled.AddTaxGroup("OR",
			domain.TaxCondition{Taxonomy: clause.Taxonomy, Operator: domain.TaxOperatorNotExists},
			domain.TaxCondition{
				Taxonomy: clause.Taxonomy,
				Field:    domain.TermFieldSlug,
				Terms:    []string{"uncategorized"},
				Operator: domain.TaxOperatorIn,
			},
		)
		return
	}
	if strings.HasPrefix(key, domain.LocalAttributePrefix) {
		// Local attributes have no shared registry to test emptiness against.
		return
	}
	if strings.HasPrefix(key, domain.GlobalAttributePrefix) {
		compiled.AddTaxGroup("OR",
			domain.TaxCondition{Taxonomy: key, Operator: domain.TaxOperatorNotExists},
			domain.TaxCondition{
				Taxonomy: key,
				Field:    domain.TermFieldSlug,
				Terms:    []string{"uncategorized"},
				Operator: domain.TaxOperatorIn,
			},
		)
		return
	}
	compiled.AddMetaGroup("OR", emptyMetaConditions(metaKey)...)
}

// emptyMetaConditions matches a meta key that is absent, empty-string or
// literal "0".
func emptyMetaConditions(key string) []domain.MetaCondition {
	return []domain.MetaCondition{
		{Key: key, Values: []string{""}, Compare: domain.MetaCompareEquals},
		{Key: key, Values: []string{"0"}, Compare: domain.MetaCompareEquals},
		{Key: key, Compare: domain.MetaCompareNotExists},
	}
}

// compileLocalAttribute matches a local attribute either inside the JSON
// attribute blob of a standalone product or as the scalar attribute meta of
// a variation. The blob pattern anchors on the attribute map key, which the
// repository writes verbatim; the display name inside the object may be
// humanized and is not matched.
func compileLocalAttribute(compiled *domain.CompiledQuery, clause domain.FilterClause, key string) {
	if clause.Mode != domain.ModeContains {
		return
	}
	name := strings.TrimPrefix(key, domain.LocalAttributePrefix)
	pattern := fmt.Sprintf(`"%s":\{[^}]*"options":\[[^\]]*"[^"]*%s`,
		regexp.QuoteMeta(name), regexp.QuoteMeta(clause.Query.First()))

	compiled.AddFragment(
		"(EXISTS (SELECT 1 FROM product_meta lm WHERE lm.product_id = p.id AND lm.meta_key = '_product_attributes' AND lm.meta_value ~ ?)"+
			" OR EXISTS (SELECT 1 FROM product_meta lm WHERE lm.product_id = p.id AND lm.meta_key = ? AND lm.meta_value = ?))",
		pattern, "attribute_"+name, clause.Query.First(),
	)
}

func compileCatalogVisibility(compiled *domain.CompiledQuery, clause domain.FilterClause) {
	terms := make([]string, 0, 2)
	if clause.Query.Contains("visible") {
		compiled.AddTaxGroup("AND", domain.TaxCondition{
			Taxonomy: domain.TaxonomyVisibility,
			Field:    domain.TermFieldSlug,
			Terms:    []string{"exclude-from-catalog", "exclude-from-search"},
			Operator: domain.TaxOperatorNotIn,
		})
		return
	}
	if clause.Query.Contains("search") {
		terms = append(terms, "exclude-from-catalog")
	}
	if clause.Query.Contains("catalog") {
		terms = append(terms, "exclude-from-search")
	}
	if clause.Query.Contains("hidden") {
		terms = []string{"exclude-from-catalog", "exclude-from-search"}
	}
	if len(terms) == 0 {
		return
	}
	compiled.AddTaxGroup("AND", domain.TaxCondition{
		Taxonomy: domain.TaxonomyVisibility,
		Field:    domain.TermFieldSlug,
		Terms:    terms,
		Operator: domain.TaxOperatorIn,
	})
}

// compileImages filters on the number of attached images, counted across
// the thumbnail meta and the comma-joined gallery meta.
func compileImages(compiled *domain.CompiledQuery, clause domain.FilterClause) {
	const countExpr = "(SELECT COALESCE(SUM(CHAR_LENGTH(im.meta_value) - CHAR_LENGTH(REPLACE(im.meta_value, ',', '')) + 1), 0)" +
		" FROM product_meta im WHERE im.product_id = p.id AND im.meta_key IN ('_thumbnail_id', '_product_image_gallery') AND im.meta_value <> '')"

	switch clause.Mode {
	case domain.ModeOne:
		compiled.AddFragment(countExpr + " = 1")
	case domain.ModeMany:
		compiled.AddFragment(countExpr + " > 1")
	case domain.ModeNone:
		compiled.AddFragment(countExpr + " = 0")
	case domain.ModeContains:
		compiled.AddFragment(
			"EXISTS (SELECT 1 FROM product_meta im WHERE im.product_id = p.id"+
				" AND im.meta_key IN ('_thumbnail_id', '_product_image_gallery') AND im.meta_value LIKE ?)",
			"%"+clause.Query.First()+"%",
		)
	}
}

func resolveOrder(sort *domain.SortOption) domain.OrderSpec {
	if sort == nil || sort.Field == "" {
		return domain.OrderSpec{}
	}
	direction := strings.ToUpper(sort.Direction)
	if direction != "DESC" {
		direction = "ASC"
	}
	aliased := strings.HasPrefix(sort.Field, domain.CoreFieldAliasMarker)
	field := strings.TrimPrefix(sort.Field, domain.CoreFieldAliasMarker)
	if aliased {
		// Alias-marked fields always sort on the raw meta key.
		return domain.OrderSpec{MetaKey: field, Direction: direction}
	}
	if column, ok := sortColumns[field]; ok {
		return domain.OrderSpec{Column: column, Direction: direction}
	}
	if metaKey, ok := domain.CoreMetaKeys[field]; ok {
		field = metaKey
	}
	return domain.OrderSpec{MetaKey: field, Direction: direction}
}

func rangeBounds(clause domain.FilterClause) (float64, float64) {
	from := 0.0
	if clause.From != nil {
		from = *clause.From
	}
	to := from
	if clause.To != nil {
		to = *clause.To
	}
	return from, to
}

func formatBound(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
}
