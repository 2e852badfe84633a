package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/gridworks/catalogbridge/internal/auth"
	"github.com/gridworks/catalogbridge/internal/domain"
)

func seedProducts(t *testing.T, products *stubProductRepo, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		p := domain.Product{Kind: domain.KindProduct, Title: "Item", Status: "publish"}
		if _, err := products.Create(ctx, &p); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestListPaginationHints(t *testing.T) {
	ctx := context.Background()
	service, products, _ := newTestService()
	seedProducts(t, products, 25)

	cases := []struct {
		page     int
		wantPrev int
		wantNext int
	}{
		{1, 0, 2},
		{2, 1, 3},
		{3, 2, 0},
	}

	for _, tc := range cases {
		result, err := service.List(ctx, ListRequest{Page: tc.page, PerPage: 10})
		if err != nil {
			t.Fatalf("page %d: %v", tc.page, err)
		}
		if result.Total != 25 || result.TotalPages != 3 {
			t.Fatalf("page %d: total=%d pages=%d", tc.page, result.Total, result.TotalPages)
		}
		if result.PrevPage != tc.wantPrev || result.NextPage != tc.wantNext {
			t.Fatalf("page %d: prev=%d next=%d, want %d/%d",
				tc.page, result.PrevPage, result.NextPage, tc.wantPrev, tc.wantNext)
		}
	}
}

func TestListDefaultOrderKeepsVariationsWithParent(t *testing.T) {
	ctx := context.Background()
	service, products, _ := newTestService()

	first := domain.Product{Kind: domain.KindProduct, Title: "Variable Shirt", Status: "publish"}
	if _, err := products.Create(ctx, &first); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := domain.Product{Kind: domain.KindProduct, Title: "Mug", Status: "publish"}
	if _, err := products.Create(ctx, &second); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 2; i++ {
		v := domain.Product{Kind: domain.KindVariation, ParentID: first.ID, Status: "publish"}
		if _, err := products.Create(ctx, &v); err != nil {
			t.Fatalf("create variation: %v", err)
		}
	}

	result, err := service.List(ctx, ListRequest{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.Items) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(result.Items))
	}

	ids := make([]int64, len(result.Items))
	parents := make([]int64, len(result.Items))
	for i, item := range result.Items {
		ids[i] = item["id"].(int64)
		parents[i] = item["parent_id"].(int64)
	}

	if ids[0] != first.ID || parents[1] != first.ID || parents[2] != first.ID {
		t.Fatalf("variations must follow their parent immediately, got ids=%v parents=%v", ids, parents)
	}
	if ids[3] != second.ID {
		t.Fatalf("unrelated product must come after the variation block, got ids=%v", ids)
	}
}

func TestListDropsRowsWithoutReadPermission(t *testing.T) {
	service, products, _ := newTestService()
	seedProducts(t, products, 3)

	ctx := auth.ContextWithPermissions(context.Background(), auth.Permissions{Read: false})
	result, err := service.List(ctx, ListRequest{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.Items) != 0 {
		t.Fatalf("unreadable rows must be dropped silently, got %d items", len(result.Items))
	}
}

func TestSaveRejectsWithoutWritePermission(t *testing.T) {
	service, _, _ := newTestService()

	ctx := auth.ContextWithPermissions(context.Background(), auth.Permissions{Read: true, Write: false})
	_, err := service.Save(ctx, map[string]any{"name": "X"}, nil)

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "catalogbridge_rest_cannot_edit" {
		t.Fatalf("expected cannot_edit, got %v", err)
	}
}

func TestSaveCreateWithPlaceholderAndChildResolution(t *testing.T) {
	ctx := context.Background()
	service, products, _ := newTestService()
	state := NewBatchState()

	parentRow, err := service.Save(ctx, map[string]any{
		"id":           "new-1",
		"name":         "Variable Shirt",
		"product_type": "variable",
	}, state)
	if err != nil {
		t.Fatalf("save parent: %v", err)
	}

	parentID, ok := state.Resolve("new-1")
	if !ok || parentID == 0 {
		t.Fatalf("placeholder new-1 not assigned")
	}
	if parentRow["product_type"] != "variable" {
		t.Fatalf("parent type = %v", parentRow["product_type"])
	}

	childRow, err := service.Save(ctx, map[string]any{
		"id":           "new-2",
		"parent_id":    "new-1",
		"product_type": "variation",
		"sku":          "VAR-1",
	}, state)
	if err != nil {
		t.Fatalf("save child: %v", err)
	}

	childID, _ := state.Resolve("new-2")
	child, err := products.GetByID(ctx, childID)
	if err != nil {
		t.Fatalf("load child: %v", err)
	}
	if child.ParentID != parentID {
		t.Fatalf("child parent = %d, want %d", child.ParentID, parentID)
	}
	if child.Kind != domain.KindVariation {
		t.Fatalf("child kind = %s", child.Kind)
	}
	if childRow["product_type"] != domain.TypeVariation {
		t.Fatalf("child type = %v", childRow["product_type"])
	}
}

func TestSaveUnresolvedParentPlaceholderFails(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()

	_, err := service.Save(ctx, map[string]any{
		"id":           "new-9",
		"parent_id":    "new-7",
		"product_type": "variation",
	}, NewBatchState())
	if err == nil {
		t.Fatalf("expected error for unassigned parent placeholder")
	}
}

func TestSaveUpsertsBySKU(t *testing.T) {
	ctx := context.Background()
	service, products, _ := newTestService()

	first, err := service.Save(ctx, map[string]any{
		"sku":          "ABC-1",
		"name":         "Original",
		"product_type": "simple",
	}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	second, err := service.Save(ctx, map[string]any{
		"sku":          "ABC-1",
		"name":         "Renamed",
		"product_type": "simple",
	}, nil)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if first["id"] != second["id"] {
		t.Fatalf("sku upsert created a second product: %v vs %v", first["id"], second["id"])
	}
	updated, _ := products.GetByID(ctx, first["id"].(int64))
	if updated.Title != "Renamed" {
		t.Fatalf("title = %q, want Renamed", updated.Title)
	}
}

func TestSaveInvalidProductType(t *testing.T) {
	ctx := context.Background()
	service, products, _ := newTestService()

	_, err := service.Save(ctx, map[string]any{
		"name":         "X",
		"product_type": "subscription",
	}, nil)

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "invalid_product_type" {
		t.Fatalf("expected invalid_product_type, got %v", err)
	}
	if n := len(products.store.products); n != 0 {
		t.Fatalf("rejected create must leave no row behind, found %d", n)
	}
}

func TestSaveUndeterminedProductType(t *testing.T) {
	ctx := context.Background()
	service, products, _ := newTestService()

	// No type supplied and no stored classification term.
	_, err := service.Save(ctx, map[string]any{"name": "X"}, nil)

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "unable_to_determine_product_type" {
		t.Fatalf("expected unable_to_determine_product_type, got %v", err)
	}
	if n := len(products.store.products); n != 0 {
		t.Fatalf("rejected create must leave no row behind, found %d", n)
	}
}

func TestSaveReroutesAliasMeta(t *testing.T) {
	ctx := context.Background()
	service, products, _ := newTestService()

	row, err := service.Save(ctx, map[string]any{
		"name":         "X",
		"product_type": "simple",
		"meta_data": []any{
			map[string]any{"key": "___warehouse_bin", "value": "A-42"},
		},
	}, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	saved, _ := products.GetByID(ctx, row["id"].(int64))
	if saved.Meta["warehouse_bin"] != "A-42" {
		t.Fatalf("alias meta not rerouted: %v", saved.Meta)
	}
	if _, ok := saved.Meta["___warehouse_bin"]; ok {
		t.Fatalf("marker key must never be persisted literally")
	}
}

func TestSaveResolvesCategoryPaths(t *testing.T) {
	ctx := context.Background()
	service, _, terms := newTestService()

	row, err := service.Save(ctx, map[string]any{
		"name":                 "X",
		"product_type":         "simple",
		"formatted_categories": "Clothing > Shirts | Sale",
	}, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	assigned, _ := terms.ObjectTerms(ctx, row["id"].(int64), domain.TaxonomyCategory)
	if len(assigned) != 2 {
		t.Fatalf("assigned terms = %+v", assigned)
	}

	shirts, found, _ := terms.TermByName(ctx, domain.TaxonomyCategory, "Shirts")
	if !found {
		t.Fatalf("nested term not created")
	}
	clothing, _, _ := terms.TermByName(ctx, domain.TaxonomyCategory, "Clothing")
	if shirts.ParentID != clothing.ID {
		t.Fatalf("hierarchy not preserved: %+v", shirts)
	}
}

func TestSaveByFieldFansOut(t *testing.T) {
	ctx := context.Background()
	service, products, terms := newTestService()

	for i := 0; i < 2; i++ {
		p := domain.Product{Kind: domain.KindProduct, Title: "Same Name", Status: "publish"}
		if _, err := products.Create(ctx, &p); err != nil {
			t.Fatalf("seed: %v", err)
		}
		term, _ := terms.EnsureTerm(ctx, domain.TaxonomyProductType, "simple", 0)
		_ = terms.AddObjectTerm(ctx, p.ID, term.ID)
	}

	results, err := service.SaveByField(ctx, "name", map[string]any{
		"name":          "Same Name",
		"regular_price": "19.99",
	})
	if err != nil {
		t.Fatalf("save by field: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	for _, result := range results {
		if result.Error != nil {
			t.Fatalf("row failed: %v", result.Error)
		}
		p, _ := products.GetByID(ctx, result.Matched)
		if p.Meta["_regular_price"] != "19.99" {
			t.Fatalf("price not applied to %d: %v", result.Matched, p.Meta)
		}
	}
}

func TestSaveByFieldNoMatch(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()

	if _, err := service.SaveByField(ctx, "slug", map[string]any{"slug": "missing"}); err == nil {
		t.Fatalf("expected error when nothing matches")
	}
}

func TestDescribeStoreInventory(t *testing.T) {
	ctx := context.Background()
	service, products, terms := newTestService()

	_, _ = terms.EnsureAttributeTaxonomy(ctx, "pa_color", "color")
	_, _ = terms.EnsureTerm(ctx, "pa_color", "Red", 0)

	p := domain.Product{
		Kind: domain.KindProduct,
		Meta: map[string]string{"_sku": "S-1", "custom_note": "x"},
		Attributes: map[string]domain.Attribute{
			"material": {Name: "Material", Options: []string{"Wool", "Cotton"}},
		},
	}
	if _, err := products.Create(ctx, &p); err != nil {
		t.Fatalf("seed: %v", err)
	}

	info, err := service.DescribeStore(ctx)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}

	hasAliased, hasCustom := false, false
	for _, key := range info.MetaKeys {
		if key == "____sku" {
			hasAliased = true
		}
		if key == "custom_note" {
			hasCustom = true
		}
	}
	if !hasAliased || !hasCustom {
		t.Fatalf("meta keys = %v", info.MetaKeys)
	}

	if got := info.Attributes["pa_color"]; len(got) != 1 || got[0] != "Red" {
		t.Fatalf("global attribute inventory = %v", info.Attributes)
	}
	if got := info.Attributes["la_material"]; len(got) != 2 {
		t.Fatalf("local attribute inventory = %v", info.Attributes)
	}
	if _, ok := info.ProductTypes["variable"]; !ok {
		t.Fatalf("product types = %v", info.ProductTypes)
	}
}
