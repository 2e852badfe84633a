package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gridworks/catalogbridge/internal/auth"
	"github.com/gridworks/catalogbridge/internal/domain"
	"github.com/gridworks/catalogbridge/internal/query"
	"github.com/gridworks/catalogbridge/internal/repository"
)

// PlaceholderPrefix marks an id reference that will be assigned during the
// current batch rather than an existing row.
const PlaceholderPrefix = "new"

// Service orchestrates listing and writing of catalog products.
type Service struct {
	products   repository.ProductRepository
	terms      repository.TermRepository
	projector  *Projector
	preparer   *Preparer
	transition *TransitionManager
}

// NewService wires the catalog service.
func NewService(products repository.ProductRepository, terms repository.TermRepository, projector *Projector) *Service {
	reconciler := NewReconciler(terms)
	transition := NewTransitionManager(products, terms)
	return &Service{
		products:   products,
		terms:      terms,
		projector:  projector,
		preparer:   NewPreparer(products, terms, reconciler, transition),
		transition: transition,
	}
}

// ListRequest is one listing query from the client.
type ListRequest struct {
	Filters []domain.FilterClause
	Sort    *domain.SortOption
	Search  string
	Fields  []string
	Page    int
	PerPage int
}

// ListResult is one page of projected rows. PrevPage/NextPage are zero at
// the corresponding boundary.
type ListResult struct {
	Items      []Row
	Total      int
	TotalPages int
	PrevPage   int
	NextPage   int
}

// List compiles the filters, runs the search and projects the surviving
// rows. Rows the caller may not read are dropped silently.
func (s *Service) List(ctx context.Context, req ListRequest) (ListResult, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PerPage <= 0 {
		req.PerPage = 25
	}

	compiled := query.Compile(req.Filters, req.Sort, req.Search)

	result, err := s.products.Search(ctx, compiled, req.Page, req.PerPage)
	if err != nil {
		return ListResult{}, err
	}

	perms := auth.PermissionsFromContext(ctx)
	visible := result.Products[:0]
	for _, product := range result.Products {
		if !perms.Read {
			continue
		}
		visible = append(visible, product)
	}

	rows, err := s.projector.Project(ctx, visible, req.Fields)
	if err != nil {
		return ListResult{}, err
	}
	if rows == nil {
		rows = []Row{}
	}

	totalPages := (result.Total + req.PerPage - 1) / req.PerPage

	out := ListResult{
		Items:      rows,
		Total:      result.Total,
		TotalPages: totalPages,
	}
	if req.Page > 1 {
		out.PrevPage = req.Page - 1
	}
	if req.Page < totalPages {
		out.NextPage = req.Page + 1
	}
	return out, nil
}

// BatchState carries placeholder assignments across the sub-actions of one
// batch request. It is threaded explicitly; nothing request-scoped is
// hidden in globals.
type BatchState struct {
	assigned map[string]int64
}

// NewBatchState creates an empty placeholder map.
func NewBatchState() *BatchState {
	return &BatchState{assigned: make(map[string]int64)}
}

// Resolve returns the real id previously assigned to a placeholder.
func (b *BatchState) Resolve(placeholder string) (int64, bool) {
	id, ok := b.assigned[placeholder]
	return id, ok
}

// Assign records the real id created for a placeholder.
func (b *BatchState) Assign(placeholder string, id int64) {
	b.assigned[placeholder] = id
}

// IsPlaceholder reports whether an id reference is a batch placeholder.
func IsPlaceholder(ref string) bool {
	return strings.HasPrefix(ref, PlaceholderPrefix)
}

// Save upserts one product from a raw payload. The target is resolved by
// real id, batch placeholder or sku, in that order. Returns the projected
// row of the saved product.
func (s *Service) Save(ctx context.Context, payload map[string]any, state *BatchState) (Row, error) {
	perms := auth.PermissionsFromContext(ctx)
	if !perms.Write {
		return nil, domain.ErrCannotEdit
	}
	if state == nil {
		state = NewBatchState()
	}

	if err := s.resolveParentRef(payload, state); err != nil {
		return nil, err
	}

	id, placeholder, err := s.resolveTarget(ctx, payload, state)
	if err != nil {
		return nil, err
	}

	var product domain.Product
	creating := id == 0
	if creating {
		// The type is validated before the row exists so a rejected create
		// leaves nothing behind.
		newType, err := creationType(payload)
		if err != nil {
			return nil, err
		}
		product = domain.Product{Kind: domain.KindProduct, Status: "publish"}
		if newType == domain.TypeVariation {
			product.Kind = domain.KindVariation
		}
		applyCoreFields(&product, payload)
		if _, err := s.products.Create(ctx, &product); err != nil {
			return nil, err
		}
	} else {
		product, err = s.products.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		applyCoreFields(&product, payload)
	}

	prepared, err := s.preparer.Prepare(ctx, &product, payload)
	if err != nil {
		return nil, err
	}

	if err := s.products.Update(ctx, prepared); err != nil {
		return nil, err
	}

	if placeholder != "" {
		state.Assign(placeholder, prepared.ID)
	}

	saved, err := s.products.GetByID(ctx, prepared.ID)
	if err != nil {
		return nil, err
	}
	rows, err := s.projector.Project(ctx, []domain.Product{saved}, nil)
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

// creationType resolves and validates the product type of a new row. A new
// row has no stored classification term, so the payload must carry a known
// type.
func creationType(payload map[string]any) (string, error) {
	newType, ok := stringParam(payload, "product_type")
	if !ok || newType == "" {
		newType, ok = stringParam(payload, "type")
	}
	if !ok || newType == "" {
		return "", domain.ErrUndeterminedProductType
	}
	if _, known := domain.KnownProductTypes()[newType]; !known {
		return "", domain.ErrInvalidProductType
	}
	return newType, nil
}

// resolveTarget determines which row the payload addresses. A zero id with
// an optional placeholder means a new row must be created.
func (s *Service) resolveTarget(ctx context.Context, payload map[string]any, state *BatchState) (int64, string, error) {
	switch raw := payload["id"].(type) {
	case float64:
		if raw > 0 {
			return int64(raw), "", nil
		}
	case int64:
		if raw > 0 {
			return raw, "", nil
		}
	case string:
		ref := strings.TrimSpace(raw)
		if IsPlaceholder(ref) {
			if id, ok := state.Resolve(ref); ok {
				return id, "", nil
			}
			return 0, ref, nil
		}
		if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
			return id, "", nil
		}
	}

	if sku, ok := payload["sku"].(string); ok && sku != "" {
		id, err := s.products.GetIDBySKU(ctx, sku)
		if err != nil {
			return 0, "", err
		}
		return id, "", nil
	}

	return 0, "", nil
}

// resolveParentRef rewrites a placeholder parent_id into the id assigned
// earlier in the same batch.
func (s *Service) resolveParentRef(payload map[string]any, state *BatchState) error {
	ref, ok := payload["parent_id"].(string)
	if !ok || !IsPlaceholder(strings.TrimSpace(ref)) {
		return nil
	}
	id, found := state.Resolve(strings.TrimSpace(ref))
	if !found {
		return fmt.Errorf("parent placeholder %q was not assigned by an earlier action", ref)
	}
	payload["parent_id"] = id
	return nil
}

// coreWritableFields maps payload keys onto product columns.
var coreWritableFields = map[string]string{
	"name":              "title",
	"slug":              "slug",
	"description":       "description",
	"short_description": "short_description",
	"status":            "status",
}

// applyCoreFields copies first-class payload fields onto the product as
// pending changes. Meta-backed core fields go through SetMeta.
func applyCoreFields(product *domain.Product, payload map[string]any) {
	for key, field := range coreWritableFields {
		if value, ok := payload[key].(string); ok {
			product.Set(field, value)
		}
	}
	if value, ok := payload["menu_order"].(float64); ok {
		product.Set("menu_order", int(value))
	}

	for field, metaKey := range metaBackedFields {
		raw, ok := payload[field]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			product.SetMeta(metaKey, v)
		case float64:
			product.SetMeta(metaKey, strconv.FormatFloat(v, 'f', -1, 64))
		case bool:
			if v {
				product.SetMeta(metaKey, "yes")
			} else {
				product.SetMeta(metaKey, "no")
			}
		}
	}
}

// SaveByFieldResult reports one matched row of a save_by_field fan-out.
type SaveByFieldResult struct {
	Matched int64 `json:"matched_id,omitempty"`
	Row     Row   `json:"row,omitempty"`
	Error   error `json:"-"`
}

// SaveByField updates every product whose matching field equals the row's
// value. matchingField is one of sku, name or slug.
func (s *Service) SaveByField(ctx context.Context, matchingField string, row map[string]any) ([]SaveByFieldResult, error) {
	value, _ := row[matchingField].(string)
	if value == "" {
		return nil, fmt.Errorf("missing value for matching field %q", matchingField)
	}

	var (
		ids []int64
		err error
	)
	switch matchingField {
	case "sku":
		var id int64
		id, err = s.products.GetIDBySKU(ctx, value)
		if id != 0 {
			ids = []int64{id}
		}
	case "name":
		ids, err = s.products.FindIDsByTitle(ctx, value)
	case "slug":
		ids, err = s.products.FindIDsBySlug(ctx, value)
	default:
		return nil, fmt.Errorf("unsupported matching field %q", matchingField)
	}
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no product matches %s=%q", matchingField, value)
	}

	results := make([]SaveByFieldResult, 0, len(ids))
	for _, id := range ids {
		payload := make(map[string]any, len(row)+1)
		for k, v := range row {
			payload[k] = v
		}
		payload["id"] = float64(id)

		saved, saveErr := s.Save(ctx, payload, nil)
		results = append(results, SaveByFieldResult{Matched: id, Row: saved, Error: saveErr})
	}
	return results, nil
}

// StoreInfo describes the editable surface of the store: custom meta keys,
// the attribute inventory and the known product types.
type StoreInfo struct {
	MetaKeys     []string            `json:"meta_keys"`
	Attributes   map[string][]string `json:"attributes"`
	ProductTypes map[string]string   `json:"product_types"`
}

// DescribeStore builds the meta/attribute inventory used by the client to
// offer columns.
func (s *Service) DescribeStore(ctx context.Context) (StoreInfo, error) {
	rawKeys, err := s.products.DistinctMetaKeys(ctx)
	if err != nil {
		return StoreInfo{}, err
	}

	coreBacked := make(map[string]struct{}, len(metaBackedFields))
	for _, metaKey := range metaBackedFields {
		coreBacked[metaKey] = struct{}{}
	}

	keys := make([]string, 0, len(rawKeys))
	for _, key := range rawKeys {
		if key == repository.AttributeBlobMetaKey {
			continue
		}
		// Core-backed keys stay editable as raw meta through the alias
		// marker.
		if _, ok := coreBacked[key]; ok {
			keys = append(keys, domain.CoreFieldAliasMarker+key)
			continue
		}
		keys = append(keys, key)
	}

	attributes := make(map[string][]string)

	taxonomies, err := s.terms.ListAttributeTaxonomies(ctx)
	if err != nil {
		return StoreInfo{}, err
	}
	for _, taxonomy := range taxonomies {
		names, err := s.terms.TermNames(ctx, taxonomy.Name)
		if err != nil {
			return StoreInfo{}, err
		}
		attributes[taxonomy.Name] = names
	}

	local, err := s.products.LocalAttributeInventory(ctx)
	if err != nil {
		return StoreInfo{}, err
	}
	for name, values := range local {
		attributes[domain.LocalAttributePrefix+domain.Slugify(name)] = values
	}

	return StoreInfo{
		MetaKeys:     keys,
		Attributes:   attributes,
		ProductTypes: domain.KnownProductTypes(),
	}, nil
}
