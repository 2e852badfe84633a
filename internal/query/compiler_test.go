package query

import (
	"regexp"
	"strings"
	"testing"

	"github.com/gridworks/catalogbridge/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }

func queryOf(values ...string) domain.QueryValue {
	if len(values) == 1 {
		return domain.QueryValue{Values: values}
	}
	return domain.QueryValue{Values: values, List: true}
}

func TestCompileSkipsInactiveClauses(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "name", Mode: domain.ModeContains, Query: queryOf("shirt"), Active: false},
	}, nil, "")

	if len(compiled.Fragments) != 0 || len(compiled.MetaGroups) != 0 || len(compiled.TaxGroups) != 0 {
		t.Fatalf("inactive clause must contribute nothing, got %+v", compiled)
	}
}

func TestCompileTextColumnContains(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "name", Mode: domain.ModeContains, Query: queryOf("shirt"), Active: true},
	}, nil, "")

	if len(compiled.Fragments) != 1 {
		t.Fatalf("expected one fragment, got %d", len(compiled.Fragments))
	}
	fragment := compiled.Fragments[0]
	if fragment.SQL != "p.title LIKE ?" {
		t.Fatalf("unexpected SQL: %s", fragment.SQL)
	}
	if fragment.Args[0] != "%shirt%" {
		t.Fatalf("unexpected arg: %v", fragment.Args[0])
	}
}

func TestCompileNumericRangeDefaults(t *testing.T) {
	cases := []struct {
		name     string
		from     *float64
		to       *float64
		wantFrom float64
		wantTo   float64
	}{
		{"both bounds", floatPtr(10), floatPtr(50), 10, 50},
		{"missing from defaults to zero", nil, floatPtr(50), 0, 50},
		{"missing to defaults to from", floatPtr(10), nil, 10, 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			compiled := Compile([]domain.FilterClause{
				{Field: "id", Mode: domain.ModeRange, From: tc.from, To: tc.to, Active: true},
			}, nil, "")

			if len(compiled.Fragments) != 1 {
				t.Fatalf("expected one fragment, got %d", len(compiled.Fragments))
			}
			fragment := compiled.Fragments[0]
			if fragment.SQL != "p.id BETWEEN ? AND ?" {
				t.Fatalf("unexpected SQL: %s", fragment.SQL)
			}
			if fragment.Args[0] != tc.wantFrom || fragment.Args[1] != tc.wantTo {
				t.Fatalf("bounds = %v..%v, want %v..%v", fragment.Args[0], fragment.Args[1], tc.wantFrom, tc.wantTo)
			}
		})
	}
}

func TestCompileMetaRange(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "price", Mode: domain.ModeRange, From: floatPtr(10), To: floatPtr(50), Active: true},
	}, nil, "")

	if len(compiled.MetaGroups) != 1 {
		t.Fatalf("expected one meta group, got %d", len(compiled.MetaGroups))
	}
	cond := compiled.MetaGroups[0].Conditions[0]
	if cond.Key != "_price" {
		t.Fatalf("key = %q, want the storage key _price", cond.Key)
	}
	if cond.Compare != domain.MetaCompareBetween {
		t.Fatalf("compare = %s, want BETWEEN", cond.Compare)
	}
	if cond.Values[0] != "10" || cond.Values[1] != "50" {
		t.Fatalf("bounds = %v, want [10 50]", cond.Values)
	}
}

func TestCompileMetaBackedFieldsUseStorageKey(t *testing.T) {
	cases := []struct {
		field string
		want  string
	}{
		{"sku", "_sku"},
		{"weight", "_weight"},
		{"stock_quantity", "_stock"},
	}
	for _, tc := range cases {
		compiled := Compile([]domain.FilterClause{
			{Field: tc.field, Mode: domain.ModeContains, Query: queryOf("x"), Active: true},
		}, nil, "")

		if len(compiled.MetaGroups) != 1 {
			t.Fatalf("%s: expected one meta group, got %+v", tc.field, compiled.MetaGroups)
		}
		if key := compiled.MetaGroups[0].Conditions[0].Key; key != tc.want {
			t.Fatalf("%s: key = %q, want %q", tc.field, key, tc.want)
		}
	}
}

func TestCompileCoreAliasMarkerStripped(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "___custom_key", Mode: domain.ModeContains, Query: queryOf("x"), Active: true},
	}, nil, "")

	if len(compiled.MetaGroups) != 1 {
		t.Fatalf("expected one meta group, got %d", len(compiled.MetaGroups))
	}
	if key := compiled.MetaGroups[0].Conditions[0].Key; key != "custom_key" {
		t.Fatalf("key = %q, want custom_key", key)
	}
}

func TestCompileProductTypeVariation(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "product_type", Mode: domain.ModeContains, Query: queryOf("variation"), Active: true},
	}, nil, "")

	if len(compiled.Kinds) != 1 || compiled.Kinds[0] != domain.KindVariation {
		t.Fatalf("kinds = %v, want [variation]", compiled.Kinds)
	}
	if len(compiled.TaxGroups) != 0 {
		t.Fatalf("variation filter must not add a type term condition")
	}
}

func TestCompileProductTypeTerm(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "product_type", Mode: domain.ModeContains, Query: queryOf("simple"), Active: true},
	}, nil, "")

	if len(compiled.TaxGroups) != 1 {
		t.Fatalf("expected one tax group, got %d", len(compiled.TaxGroups))
	}
	cond := compiled.TaxGroups[0].Conditions[0]
	if cond.Taxonomy != domain.TaxonomyProductType || cond.Field != domain.TermFieldSlug {
		t.Fatalf("unexpected condition %+v", cond)
	}
	if len(compiled.Kinds) != 2 {
		t.Fatalf("type term filter must keep both kinds, got %v", compiled.Kinds)
	}
}

func TestCompileAliasedProductTypeIsMeta(t *testing.T) {
	// A ___product_type field targets the raw meta key, not the type term.
	compiled := Compile([]domain.FilterClause{
		{Field: "___product_type", Mode: domain.ModeContains, Query: queryOf("simple"), Active: true},
	}, nil, "")

	if len(compiled.TaxGroups) != 0 {
		t.Fatalf("aliased field must not touch the type taxonomy")
	}
	if len(compiled.MetaGroups) != 1 || compiled.MetaGroups[0].Conditions[0].Key != "product_type" {
		t.Fatalf("expected a product_type meta condition, got %+v", compiled.MetaGroups)
	}
}

func TestCompileGlobalAttribute(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "pa_color", Mode: domain.ModeContains, Query: queryOf("Red", "Blue"), Active: true},
	}, nil, "")

	if len(compiled.TaxGroups) != 1 {
		t.Fatalf("expected one tax group, got %d", len(compiled.TaxGroups))
	}
	cond := compiled.TaxGroups[0].Conditions[0]
	if cond.Taxonomy != "pa_color" || cond.Field != domain.TermFieldName {
		t.Fatalf("unexpected condition %+v", cond)
	}
	if len(cond.Terms) != 2 {
		t.Fatalf("terms = %v", cond.Terms)
	}
}

func TestCompileLocalAttributePattern(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "la_material", Mode: domain.ModeContains, Query: queryOf("Cotton"), Active: true},
	}, nil, "")

	if len(compiled.Fragments) != 1 {
		t.Fatalf("expected one fragment, got %d", len(compiled.Fragments))
	}
	fragment := compiled.Fragments[0]
	if !strings.Contains(fragment.SQL, "_product_attributes") {
		t.Fatalf("blob meta key missing from SQL: %s", fragment.SQL)
	}
	// The pattern anchors on the attribute map key; the display name inside
	// the object is humanized on write and must not be matched.
	pattern, ok := fragment.Args[0].(string)
	if !ok || !strings.Contains(pattern, `"material":\{`) {
		t.Fatalf("unexpected blob pattern: %v", fragment.Args[0])
	}
	if strings.Contains(pattern, `"name":`) {
		t.Fatalf("pattern must not match the display name: %s", pattern)
	}
	if fragment.Args[1] != "attribute_material" || fragment.Args[2] != "Cotton" {
		t.Fatalf("variation meta fallback args = %v", fragment.Args[1:])
	}

	// The pattern must match the blob as the repository marshals it,
	// humanized display name included.
	blob := `{"material":{"taxonomy_id":0,"name":"Material","options":["Cotton","Wool"],"visible":true,"variation":true,"position":0}}`
	matched, err := regexp.MatchString(pattern, blob)
	if err != nil {
		t.Fatalf("invalid pattern %q: %v", pattern, err)
	}
	if !matched {
		t.Fatalf("pattern %q does not match stored blob %q", pattern, blob)
	}
}

func TestCompileLocalAttributeQuotesRegexMeta(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "la_size", Mode: domain.ModeContains, Query: queryOf("10.5 (wide)"), Active: true},
	}, nil, "")

	pattern := compiled.Fragments[0].Args[0].(string)
	if !strings.Contains(pattern, `10\.5 \(wide\)`) {
		t.Fatalf("regex metacharacters must be quoted, got %s", pattern)
	}
}

func TestCompileEmptyModeTextColumn(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "description", Mode: domain.ModeEmpty, Active: true},
	}, nil, "")

	if len(compiled.Fragments) != 1 {
		t.Fatalf("expected one fragment, got %d", len(compiled.Fragments))
	}
	if sql := compiled.Fragments[0].SQL; sql != "(p.description IS NULL OR p.description = '')" {
		t.Fatalf("unexpected SQL: %s", sql)
	}
}

func TestCompileEmptyModeMeta(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "weight", Mode: domain.ModeEmpty, Active: true},
	}, nil, "")

	if len(compiled.MetaGroups) != 1 {
		t.Fatalf("expected one meta group, got %d", len(compiled.MetaGroups))
	}
	group := compiled.MetaGroups[0]
	if group.Relation != "OR" || len(group.Conditions) != 3 {
		t.Fatalf("empty meta must be a 3-way OR, got %+v", group)
	}
	if group.Conditions[0].Key != "_weight" {
		t.Fatalf("key = %q, want the storage key _weight", group.Conditions[0].Key)
	}
	if group.Conditions[2].Compare != domain.MetaCompareNotExists {
		t.Fatalf("third condition must be NOT EXISTS, got %s", group.Conditions[2].Compare)
	}
}

func TestCompileEmptyModeTaxonomy(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "categories", Taxonomy: domain.TaxonomyCategory, Mode: domain.ModeEmpty, Active: true},
	}, nil, "")

	if len(compiled.TaxGroups) != 1 {
		t.Fatalf("expected one tax group, got %d", len(compiled.TaxGroups))
	}
	group := compiled.TaxGroups[0]
	if group.Relation != "OR" || len(group.Conditions) != 2 {
		t.Fatalf("empty taxonomy must OR not-exists with uncategorized, got %+v", group)
	}
	if group.Conditions[0].Operator != domain.TaxOperatorNotExists {
		t.Fatalf("first condition must be NOT EXISTS")
	}
	if group.Conditions[1].Terms[0] != "uncategorized" {
		t.Fatalf("second condition must match uncategorized, got %v", group.Conditions[1].Terms)
	}
}

func TestCompileTaxClassStandardMatchesEmpty(t *testing.T) {
	// The client filters on the field name, not the storage key.
	compiled := Compile([]domain.FilterClause{
		{Field: "tax_class", Mode: domain.ModeContains, Query: queryOf("standard"), Active: true},
	}, nil, "")

	var foundOrGroup, foundLiteral bool
	for _, group := range compiled.MetaGroups {
		if group.Relation == "OR" && len(group.Conditions) == 3 && group.Conditions[0].Key == "_tax_class" {
			foundOrGroup = true
		}
		if group.Relation == "AND" && group.Conditions[0].Key == "_tax_class" {
			foundLiteral = true
		}
	}
	if !foundOrGroup || !foundLiteral {
		t.Fatalf("standard tax class must OR the empty-value group alongside the literal match, got %+v", compiled.MetaGroups)
	}
}

func TestCompileCatalogVisibilityVisible(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "catalog_visibility", Mode: domain.ModeContains, Query: queryOf("visible"), Active: true},
	}, nil, "")

	cond := compiled.TaxGroups[0].Conditions[0]
	if cond.Operator != domain.TaxOperatorNotIn || len(cond.Terms) != 2 {
		t.Fatalf("visible must exclude both hidden terms, got %+v", cond)
	}
}

func TestCompileCatalogVisibilityHidden(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "catalog_visibility", Mode: domain.ModeContains, Query: queryOf("hidden"), Active: true},
	}, nil, "")

	cond := compiled.TaxGroups[0].Conditions[0]
	if cond.Operator != domain.TaxOperatorIn || len(cond.Terms) != 2 {
		t.Fatalf("hidden must require both exclusion terms, got %+v", cond)
	}
}

func TestCompileFeaturedNo(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "featured", Mode: domain.ModeContains, Query: queryOf("no"), Active: true},
	}, nil, "")

	cond := compiled.TaxGroups[0].Conditions[0]
	if cond.Operator != domain.TaxOperatorNotIn {
		t.Fatalf("featured=no must negate the term, got %+v", cond)
	}
}

func TestCompileStatusPassthrough(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "status", Mode: domain.ModeContains, Query: queryOf("draft", "publish"), Active: true},
	}, nil, "")

	if len(compiled.Statuses) != 2 {
		t.Fatalf("statuses = %v", compiled.Statuses)
	}
}

func TestCompileImagesModes(t *testing.T) {
	cases := []struct {
		mode domain.ComparisonMode
		want string
	}{
		{domain.ModeOne, " = 1"},
		{domain.ModeMany, " > 1"},
		{domain.ModeNone, " = 0"},
	}
	for _, tc := range cases {
		compiled := Compile([]domain.FilterClause{
			{Field: "images", Mode: tc.mode, Active: true},
		}, nil, "")
		if len(compiled.Fragments) != 1 {
			t.Fatalf("mode %s: expected one fragment", tc.mode)
		}
		if !strings.HasSuffix(compiled.Fragments[0].SQL, tc.want) {
			t.Fatalf("mode %s: SQL %q does not end with %q", tc.mode, compiled.Fragments[0].SQL, tc.want)
		}
	}
}

func TestCompileTaxonomySearchClause(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "categories", Taxonomy: domain.TaxonomyCategory, Mode: domain.ModeContains, Query: queryOf("Shoes"), Active: true},
	}, nil, "")

	cond := compiled.TaxGroups[0].Conditions[0]
	if cond.Field != domain.TermFieldSearch || cond.Terms[0] != "Shoes" {
		t.Fatalf("unexpected condition %+v", cond)
	}
}

func TestCompileGenericMetaListUsesIn(t *testing.T) {
	compiled := Compile([]domain.FilterClause{
		{Field: "_custom", Mode: domain.ModeContains, Query: queryOf("a", "b"), Active: true},
	}, nil, "")

	if compiled.MetaGroups[0].Conditions[0].Compare != domain.MetaCompareIn {
		t.Fatalf("list query must compare with IN")
	}
}

func TestCompileSearchTermRecorded(t *testing.T) {
	compiled := Compile(nil, nil, "blue shirt")
	if compiled.Search != "blue shirt" {
		t.Fatalf("search = %q", compiled.Search)
	}
}

func TestResolveOrderDefault(t *testing.T) {
	compiled := Compile(nil, nil, "")
	if !compiled.Order.IsDefault() {
		t.Fatalf("no sort must produce the default order, got %+v", compiled.Order)
	}
}

func TestResolveOrderColumnAndMeta(t *testing.T) {
	compiled := Compile(nil, &domain.SortOption{Field: "name", Direction: "desc"}, "")
	if compiled.Order.Column != "title" || compiled.Order.Direction != "DESC" {
		t.Fatalf("unexpected order %+v", compiled.Order)
	}

	compiled = Compile(nil, &domain.SortOption{Field: "price"}, "")
	if compiled.Order.MetaKey != "_price" || compiled.Order.Direction != "ASC" {
		t.Fatalf("meta-backed sort must use the storage key, got %+v", compiled.Order)
	}

	// An alias-marked field sorts on the raw meta key, even when the plain
	// name would resolve to a column.
	compiled = Compile(nil, &domain.SortOption{Field: "___name"}, "")
	if compiled.Order.MetaKey != "name" || compiled.Order.Column != "" {
		t.Fatalf("aliased sort must target raw meta, got %+v", compiled.Order)
	}
}
