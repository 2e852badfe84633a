package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gridworks/catalogbridge/internal/domain"
	"github.com/gridworks/catalogbridge/internal/repository"
)

// Row is one projected product as sent to the client.
type Row map[string]any

// Transform post-processes a projected row. Optional modules register
// transforms at startup; they run in registration order on every row.
type Transform func(Row) Row

// coreFields is the fixed list of first-class projection fields. Anything
// requested outside this list is served through meta_data.
var coreFields = []string{
	"id", "name", "slug", "permalink",
	"date_created", "date_created_gmt", "date_modified", "date_modified_gmt",
	"type", "status", "featured", "catalog_visibility",
	"description", "short_description", "sku",
	"price", "regular_price", "sale_price",
	"date_on_sale_from", "date_on_sale_from_gmt", "date_on_sale_to", "date_on_sale_to_gmt",
	"price_html", "on_sale", "purchasable", "total_sales",
	"virtual", "downloadable", "downloads", "download_limit", "download_expiry",
	"external_url", "button_text", "tax_status", "tax_class",
	"manage_stock", "stock_quantity", "stock_status",
	"backorders", "backorders_allowed", "backordered", "low_stock_amount",
	"sold_individually", "weight", "dimensions",
	"shipping_required", "shipping_taxable", "shipping_class", "shipping_class_id",
	"reviews_allowed", "average_rating", "rating_count",
	"related_ids", "upsell_ids", "cross_sell_ids", "parent_id", "purchase_note",
	"categories", "tags", "images", "attributes", "default_attributes",
	"variations", "grouped_products", "menu_order", "meta_data",
}

// requiredFields are always present regardless of the requested subset.
var requiredFields = []string{"id", "parent_id", "name", "product_type"}

// fieldAliases maps client field names onto the core field that backs them.
var fieldAliases = map[string]string{
	"length":                   "dimensions",
	"width":                    "dimensions",
	"height":                   "dimensions",
	"formatted_upsell_ids":     "upsell_ids",
	"formatted_cross_sell_ids": "cross_sell_ids",
	"formatted_categories":     "categories",
	"formatted_tags":           "tags",
	"formatted_images":         "images",
	"product_type":             "type",
}

// metaBackedFields maps core fields onto the meta key that stores them.
// Shared with the filter compiler so reads and writes agree on the key.
var metaBackedFields = domain.CoreMetaKeys

var coreFieldSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(coreFields))
	for _, f := range coreFields {
		set[f] = struct{}{}
	}
	return set
}()

// fieldSubsetCache memoizes resolved field subsets keyed by a content hash
// of the request. Entries are idempotent so concurrent overwrite is safe.
var fieldSubsetCache sync.Map

// MatchFields resolves a requested field list to the core fields that must
// be projected. An empty request selects everything. Attributes are always
// included so the client can build its column list.
func MatchFields(requested []string) []string {
	if len(requested) == 0 {
		return coreFields
	}

	merged := make([]string, 0, len(requested)+len(requiredFields))
	merged = append(merged, requiredFields...)
	merged = append(merged, requested...)

	seen := make(map[string]struct{}, len(merged))
	unique := merged[:0]
	for _, field := range merged {
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		unique = append(unique, field)
	}

	sorted := append([]string(nil), unique...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	cacheKey := hex.EncodeToString(sum[:])

	if cached, ok := fieldSubsetCache.Load(cacheKey); ok {
		return cached.([]string)
	}

	matchedSet := map[string]struct{}{"attributes": {}}
	for _, field := range unique {
		resolved := field
		if strings.HasPrefix(field, "attribute_") {
			resolved = "attributes"
		} else if alias, ok := fieldAliases[field]; ok {
			resolved = alias
		}
		if _, ok := coreFieldSet[resolved]; ok {
			matchedSet[resolved] = struct{}{}
		} else {
			matchedSet["meta_data"] = struct{}{}
		}
	}

	matched := make([]string, 0, len(matchedSet))
	for _, field := range coreFields {
		if _, ok := matchedSet[field]; ok {
			matched = append(matched, field)
		}
	}

	fieldSubsetCache.Store(cacheKey, matched)
	return matched
}

// ParentFetcher batch-loads parent products for variation rows.
type ParentFetcher func(ctx context.Context, ids []int64) (map[int64]domain.Product, error)

// Projector shapes products into client rows.
type Projector struct {
	terms      repository.TermRepository
	parents    ParentFetcher
	transforms []Transform

	mu        sync.Mutex
	pathCache map[int64][]string
}

// NewProjector creates a projector. parents may be nil when variation rows
// never appear (tests).
func NewProjector(terms repository.TermRepository, parents ParentFetcher) *Projector {
	return &Projector{
		terms:     terms,
		parents:   parents,
		pathCache: make(map[int64][]string),
	}
}

// RegisterTransform appends a response transform. Not safe for concurrent
// use; call during startup only.
func (p *Projector) RegisterTransform(t Transform) {
	p.transforms = append(p.transforms, t)
}

// Project shapes a page of products into rows restricted to the requested
// field subset.
func (p *Projector) Project(ctx context.Context, products []domain.Product, requestedFields []string) ([]Row, error) {
	fields := MatchFields(requestedFields)
	fieldSet := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		fieldSet[f] = struct{}{}
	}

	ids := make([]int64, len(products))
	var parentIDs []int64
	for i, product := range products {
		ids[i] = product.ID
		if product.IsVariation() && product.ParentID != 0 {
			parentIDs = append(parentIDs, product.ParentID)
		}
	}

	terms, err := p.terms.ObjectTermsForProducts(ctx, ids,
		[]string{domain.TaxonomyProductType, domain.TaxonomyCategory, domain.TaxonomyTag, domain.TaxonomyVisibility})
	if err != nil {
		return nil, fmt.Errorf("failed to load projection terms: %w", err)
	}

	parents := map[int64]domain.Product{}
	if len(parentIDs) > 0 && p.parents != nil {
		parents, err = p.parents(ctx, parentIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load variation parents: %w", err)
		}
	}

	rows := make([]Row, 0, len(products))
	for i := range products {
		row, err := p.project(ctx, &products[i], fieldSet, terms[products[i].ID], parents, requestedFields)
		if err != nil {
			return nil, err
		}
		for _, transform := range p.transforms {
			row = transform(row)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (p *Projector) project(ctx context.Context, product *domain.Product, fields map[string]struct{}, terms []domain.Term, parents map[int64]domain.Product, requestedFields []string) (Row, error) {
	item := Row{}

	byTaxonomy := map[string][]domain.Term{}
	for _, term := range terms {
		byTaxonomy[term.Taxonomy] = append(byTaxonomy[term.Taxonomy], term)
	}

	// The classification term is authoritative; the column is never
	// consulted.
	productType := resolveProductType(product, byTaxonomy[domain.TaxonomyProductType])

	item["id"] = product.ID
	item["parent_id"] = product.ParentID
	item["name"] = product.Title
	item["product_type"] = productType
	item["type"] = productType

	for field := range fields {
		switch field {
		case "id", "parent_id", "name", "type", "meta_data":
			// handled elsewhere
		case "slug":
			item["slug"] = product.Slug
		case "status":
			item["status"] = product.Status
		case "description":
			item["description"] = product.Description
		case "short_description":
			item["short_description"] = product.ShortDescription
		case "menu_order":
			item["menu_order"] = product.MenuOrder
		case "date_created", "date_created_gmt":
			item[field] = product.CreatedAt.Format("2006-01-02")
		case "date_modified", "date_modified_gmt":
			item[field] = product.UpdatedAt.Format("2006-01-02")
		case "featured":
			item["featured"] = hasTermSlug(byTaxonomy[domain.TaxonomyVisibility], "featured")
		case "catalog_visibility":
			item["catalog_visibility"] = catalogVisibility(byTaxonomy[domain.TaxonomyVisibility])
		case "dimensions":
			item["width"] = product.Meta["_width"]
			item["height"] = product.Meta["_height"]
			item["length"] = product.Meta["_length"]
		case "categories":
			formatted, err := p.formatCategoryPaths(ctx, byTaxonomy[domain.TaxonomyCategory])
			if err != nil {
				return nil, err
			}
			item["formatted_categories"] = formatted
		case "tags":
			item["formatted_tags"] = joinTermNames(byTaxonomy[domain.TaxonomyTag])
		case "images":
			item["formatted_images"] = formatImages(product.Meta)
		case "attributes":
			item["attributes"] = p.projectAttributes(product, parents)
		case "upsell_ids":
			item["formatted_upsell_ids"] = formatIDList(product.Meta["_upsell_ids"])
		case "cross_sell_ids":
			item["formatted_cross_sell_ids"] = formatIDList(product.Meta["_cross_sell_ids"])
		case "date_on_sale_from", "date_on_sale_to":
			item[field] = dateOnly(product.Meta[metaBackedFields[field]])
		case "manage_stock":
			value := product.Meta["_manage_stock"]
			item["manage_stock"] = value == "yes" || value == "1" || value == "true"
		case "tax_class":
			value := product.Meta["_tax_class"]
			if value == "" {
				value = "standard"
			}
			item["tax_class"] = value
		case "on_sale":
			item["on_sale"] = product.Meta["_sale_price"] != ""
		case "backorders_allowed":
			item["backorders_allowed"] = product.Meta["_backorders"] != "" && product.Meta["_backorders"] != "no"
		default:
			if metaKey, ok := metaBackedFields[field]; ok {
				item[field] = product.Meta[metaKey]
			} else {
				item[field] = ""
			}
		}
	}

	if _, ok := fields["meta_data"]; ok {
		item["meta_data"] = collectMetaData(product)
	}

	// Core-alias fields resolve straight from meta after projection.
	for _, field := range requestedFields {
		if strings.HasPrefix(field, domain.CoreFieldAliasMarker) {
			item[field] = product.Meta[strings.TrimPrefix(field, domain.CoreFieldAliasMarker)]
		}
	}

	return item, nil
}

func resolveProductType(product *domain.Product, typeTerms []domain.Term) string {
	if product.IsVariation() {
		return domain.TypeVariation
	}
	if len(typeTerms) > 0 {
		return typeTerms[0].Slug
	}
	return domain.TypeSimple
}

func hasTermSlug(terms []domain.Term, slug string) bool {
	for _, term := range terms {
		if term.Slug == slug {
			return true
		}
	}
	return false
}

func catalogVisibility(terms []domain.Term) string {
	excludeSearch := hasTermSlug(terms, "exclude-from-search")
	excludeCatalog := hasTermSlug(terms, "exclude-from-catalog")
	switch {
	case excludeSearch && excludeCatalog:
		return "hidden"
	case excludeSearch:
		return "catalog"
	case excludeCatalog:
		return "search"
	default:
		return "visible"
	}
}

// formatCategoryPaths renders assignments as "Parent > Child | Other".
func (p *Projector) formatCategoryPaths(ctx context.Context, categories []domain.Term) (string, error) {
	paths := make([]string, 0, len(categories))
	for _, category := range categories {
		names, err := p.termPath(ctx, category.ID)
		if err != nil {
			return "", err
		}
		paths = append(paths, strings.Join(names, " > "))
	}
	return strings.Join(paths, " | "), nil
}

func (p *Projector) termPath(ctx context.Context, termID int64) ([]string, error) {
	p.mu.Lock()
	cached, ok := p.pathCache[termID]
	p.mu.Unlock()
	if ok {
		return cached, nil
	}

	names, err := p.terms.PathNames(ctx, termID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve category path: %w", err)
	}

	p.mu.Lock()
	p.pathCache[termID] = names
	p.mu.Unlock()
	return names, nil
}

func joinTermNames(terms []domain.Term) string {
	names := make([]string, len(terms))
	for i, term := range terms {
		names[i] = term.Name
	}
	return strings.Join(names, " | ")
}

func formatImages(meta map[string]string) string {
	var ids []string
	if thumb := meta["_thumbnail_id"]; thumb != "" {
		ids = append(ids, thumb)
	}
	if gallery := meta["_product_image_gallery"]; gallery != "" {
		for _, id := range strings.Split(gallery, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return strings.Join(ids, ",")
}

func formatIDList(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return strings.Join(ids, ", ")
}

func dateOnly(value string) string {
	if value == "" {
		return value
	}
	if idx := strings.IndexByte(value, 'T'); idx > 0 {
		return value[:idx]
	}
	return value
}

// projectAttributes renders the attribute list. Variation rows resolve
// their values against the parent's attribute set.
func (p *Projector) projectAttributes(product *domain.Product, parents map[int64]domain.Product) []Row {
	if product.IsVariation() {
		parentAttrs := map[string]domain.Attribute{}
		if parent, ok := parents[product.ParentID]; ok {
			parentAttrs = parent.Attributes
		}
		keys := make([]string, 0, len(product.AttributeValues))
		for key := range product.AttributeValues {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		rows := make([]Row, 0, len(keys))
		for _, key := range keys {
			name := key
			var taxonomyID int64
			if attr, ok := parentAttrs[key]; ok {
				name = attr.Name
				taxonomyID = attr.TaxonomyID
			}
			rows = append(rows, Row{
				"id":     taxonomyID,
				"name":   name,
				"option": product.AttributeValues[key],
			})
		}
		return rows
	}

	keys := make([]string, 0, len(product.Attributes))
	for key := range product.Attributes {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := product.Attributes[keys[i]], product.Attributes[keys[j]]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return keys[i] < keys[j]
	})

	rows := make([]Row, 0, len(keys))
	for _, key := range keys {
		attr := product.Attributes[key]
		rows = append(rows, Row{
			"id":        attr.TaxonomyID,
			"name":      attr.Name,
			"position":  attr.Position,
			"visible":   attr.Visible,
			"variation": attr.UsedForVariants,
			"options":   attr.Options,
		})
	}
	return rows
}

// internalMetaKeys are served through core fields and never exposed as raw
// meta_data entries.
var internalMetaKeys = map[string]struct{}{
	repository.AttributeBlobMetaKey: {},
	"_thumbnail_id":                 {},
	"_product_image_gallery":        {},
}

func collectMetaData(product *domain.Product) []Row {
	coreBacked := make(map[string]struct{}, len(metaBackedFields))
	for _, metaKey := range metaBackedFields {
		coreBacked[metaKey] = struct{}{}
	}

	keys := make([]string, 0, len(product.Meta))
	for key := range product.Meta {
		if _, ok := internalMetaKeys[key]; ok {
			continue
		}
		if _, ok := coreBacked[key]; ok {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entries := make([]Row, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, Row{"key": key, "value": product.Meta[key]})
	}
	return entries
}
