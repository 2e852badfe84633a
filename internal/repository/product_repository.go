package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gridworks/catalogbridge/internal/db"
	"github.com/gridworks/catalogbridge/internal/domain"
)

// AttributeBlobMetaKey stores a standalone product's attribute set as one
// JSON blob. Variation values use per-attribute scalar metas instead.
const (
	AttributeBlobMetaKey   = "_product_attributes"
	AttributeValuePrefix   = "attribute_"
	SKUMetaKey             = "_sku"
	productColumns         = "p.id, p.parent_id, p.kind, p.title, p.slug, p.description, p.short_description, p.status, p.menu_order, p.created_at, p.updated_at"
	defaultSearchStatusSQL = "p.status NOT IN ('trash', 'auto-draft')"
)

// ErrNotFound is returned when a product does not exist.
var ErrNotFound = errors.New("product not found")

type productRepository struct {
	conn *db.Connection
}

// NewProductRepository creates a new product repository.
func NewProductRepository(conn *db.Connection) ProductRepository {
	return &productRepository{conn: conn}
}

type sqlBuilder struct {
	args []any
}

func newSQLBuilder() *sqlBuilder {
	return &sqlBuilder{args: make([]any, 0)}
}

func (b *sqlBuilder) addArg(value any) int {
	b.args = append(b.args, value)
	return len(b.args)
}

func (b *sqlBuilder) placeholder(idx int) string {
	return fmt.Sprintf("$%d", idx)
}

// rewriteFragment converts ?-style placeholders into positional arguments.
func (b *sqlBuilder) rewriteFragment(fragment domain.Fragment) string {
	var out strings.Builder
	argIdx := 0
	for i := 0; i < len(fragment.SQL); i++ {
		if fragment.SQL[i] != '?' {
			out.WriteByte(fragment.SQL[i])
			continue
		}
		if argIdx >= len(fragment.Args) {
			out.WriteByte('?')
			continue
		}
		idx := b.addArg(fragment.Args[argIdx])
		out.WriteString(b.placeholder(idx))
		argIdx++
	}
	return out.String()
}

// Create inserts a new product row and persists its meta and attributes.
func (r *productRepository) Create(ctx context.Context, product *domain.Product) (int64, error) {
	var id int64
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO products (parent_id, kind, title, slug, description, short_description, status, menu_order)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id`,
			product.ParentID, product.Kind, product.Title, product.Slug,
			product.Description, product.ShortDescription, product.Status, product.MenuOrder,
		)
		if err := row.Scan(&id); err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		product.ID = id
		return r.saveMeta(ctx, tx, product)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create product: %w", err)
	}
	product.ClearChanges()
	return id, nil
}

// Update persists the product row, its meta and attribute payloads.
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE products
			 SET parent_id = $2, kind = $3, title = $4, slug = $5, description = $6,
			     short_description = $7, status = $8, menu_order = $9, updated_at = now()
			 WHERE id = $1`,
			product.ID, product.ParentID, product.Kind, product.Title, product.Slug,
			product.Description, product.ShortDescription, product.Status, product.MenuOrder,
		)
		if err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return r.saveMeta(ctx, tx, product)
	})
	if err != nil {
		return fmt.Errorf("failed to update product %d: %w", product.ID, err)
	}
	product.ClearChanges()
	return nil
}

func (r *productRepository) saveMeta(ctx context.Context, tx pgx.Tx, product *domain.Product) error {
	meta := make(map[string]string, len(product.Meta)+1)
	for key, value := range product.Meta {
		meta[key] = value
	}

	if product.IsVariation() {
		for name, value := range product.AttributeValues {
			meta[AttributeValuePrefix+domain.Slugify(name)] = value
		}
	} else if product.Attributes != nil {
		blob, err := json.Marshal(product.Attributes)
		if err != nil {
			return fmt.Errorf("marshal attribute set: %w", err)
		}
		meta[AttributeBlobMetaKey] = string(blob)
	}

	for key, value := range meta {
		if _, err := tx.Exec(ctx,
			`INSERT INTO product_meta (product_id, meta_key, meta_value)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (product_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value`,
			product.ID, key, value,
		); err != nil {
			return fmt.Errorf("upsert meta %q: %w", key, err)
		}
	}

	for _, key := range product.RemovedMeta {
		if _, err := tx.Exec(ctx,
			`DELETE FROM product_meta WHERE product_id = $1 AND meta_key = $2`,
			product.ID, key,
		); err != nil {
			return fmt.Errorf("delete meta %q: %w", key, err)
		}
	}

	return nil
}

// GetByID retrieves a product by id.
func (r *productRepository) GetByID(ctx context.Context, id int64) (domain.Product, error) {
	products, err := r.GetByIDs(ctx, []int64{id})
	if err != nil {
		return domain.Product{}, err
	}
	if len(products) == 0 {
		return domain.Product{}, ErrNotFound
	}
	return products[0], nil
}

// GetByIDs retrieves multiple products with their meta in one round trip
// per table.
func (r *productRepository) GetByIDs(ctx context.Context, ids []int64) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}

	rows, err := r.conn.Pool.Query(ctx,
		"SELECT "+productColumns+" FROM products p WHERE p.id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get products by IDs: %w", err)
	}
	defer rows.Close()

	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}

	if err := r.attachMeta(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *productRepository) attachMeta(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]int64, len(products))
	index := make(map[int64]*domain.Product, len(products))
	for i := range products {
		ids[i] = products[i].ID
		index[products[i].ID] = &products[i]
	}

	rows, err := r.conn.Pool.Query(ctx,
		`SELECT product_id, meta_key, meta_value FROM product_meta WHERE product_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("failed to load product meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID int64
			key       string
			value     string
		)
		if err := rows.Scan(&productID, &key, &value); err != nil {
			return fmt.Errorf("scan meta row: %w", err)
		}
		product, ok := index[productID]
		if !ok {
			continue
		}
		switch {
		case key == AttributeBlobMetaKey:
			attrs := make(map[string]domain.Attribute)
			if err := json.Unmarshal([]byte(value), &attrs); err != nil {
				return fmt.Errorf("decode attribute set for product %d: %w", productID, err)
			}
			product.Attributes = attrs
		case strings.HasPrefix(key, AttributeValuePrefix) && product.Kind == domain.KindVariation:
			if product.AttributeValues == nil {
				product.AttributeValues = make(map[string]string)
			}
			product.AttributeValues[strings.TrimPrefix(key, AttributeValuePrefix)] = value
		default:
			if product.Meta == nil {
				product.Meta = make(map[string]string)
			}
			product.Meta[key] = value
		}
	}
	return rows.Err()
}

// GetIDBySKU resolves a product id by its SKU meta. Returns 0 when absent.
func (r *productRepository) GetIDBySKU(ctx context.Context, sku string) (int64, error) {
	var id int64
	err := r.conn.Pool.QueryRow(ctx,
		`SELECT product_id FROM product_meta WHERE meta_key = $1 AND meta_value = $2 ORDER BY product_id LIMIT 1`,
		SKUMetaKey, sku,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve product by sku: %w", err)
	}
	return id, nil
}

// FindIDsByTitle resolves product ids by exact title.
func (r *productRepository) FindIDsByTitle(ctx context.Context, title string) ([]int64, error) {
	return r.findIDs(ctx, "title", title)
}

// FindIDsBySlug resolves product ids by exact slug.
func (r *productRepository) FindIDsBySlug(ctx context.Context, slug string) ([]int64, error) {
	return r.findIDs(ctx, "slug", slug)
}

func (r *productRepository) findIDs(ctx context.Context, column, value string) ([]int64, error) {
	rows, err := r.conn.Pool.Query(ctx,
		fmt.Sprintf("SELECT id FROM products WHERE %s = $1 ORDER BY id", column), value)
	if err != nil {
		return nil, fmt.Errorf("failed to find products by %s: %w", column, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Search executes a compiled query with pagination.
func (r *productRepository) Search(ctx context.Context, compiled domain.CompiledQuery, page, perPage int) (SearchResult, error) {
	builder := newSQLBuilder()

	var fromClause strings.Builder
	fromClause.WriteString("FROM products p ")

	var sortMetaIdx int
	if compiled.Order.MetaKey != "" {
		sortMetaIdx = builder.addArg(compiled.Order.MetaKey)
		fromClause.WriteString(fmt.Sprintf(
			"LEFT JOIN product_meta sortmeta ON sortmeta.product_id = p.id AND sortmeta.meta_key = %s ",
			builder.placeholder(sortMetaIdx)))
	}

	conds := r.buildConditions(compiled, builder)
	whereSQL := strings.Join(conds, " AND ")

	// The full-text search OR-extends the whole clause with a SKU match,
	// scoped to both kinds and excluding trashed/draft rows.
	if compiled.Search != "" {
		likeIdx := builder.addArg("%" + compiled.Search + "%")
		skuCond := fmt.Sprintf(
			"(EXISTS (SELECT 1 FROM product_meta sm WHERE sm.product_id = p.id AND sm.meta_key = '%s' AND sm.meta_value LIKE %s) AND %s)",
			SKUMetaKey, builder.placeholder(likeIdx), defaultSearchStatusSQL)
		textIdx := builder.addArg("%" + compiled.Search + "%")
		textCond := fmt.Sprintf("(p.title LIKE %s OR p.description LIKE %s)",
			builder.placeholder(textIdx), builder.placeholder(textIdx))
		whereSQL = fmt.Sprintf("((%s AND %s) OR %s)", whereSQL, textCond, skuCond)
	}

	orderSQL := r.buildOrderClause(compiled.Order, builder, sortMetaIdx)

	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 25
	}
	limitIdx := builder.addArg(perPage)
	offsetIdx := builder.addArg((page - 1) * perPage)

	querySQL := fmt.Sprintf(
		"SELECT %s, COUNT(*) OVER() AS total_count %s WHERE %s %s LIMIT %s OFFSET %s",
		productColumns, fromClause.String(), whereSQL, orderSQL,
		builder.placeholder(limitIdx), builder.placeholder(offsetIdx))

	rows, err := r.conn.Pool.Query(ctx, querySQL, builder.args...)
	if err != nil {
		return SearchResult{}, fmt.Errorf("failed to execute catalog search: %w", err)
	}
	defer rows.Close()

	var (
		products []domain.Product
		total    int
	)
	for rows.Next() {
		product, totalCount, err := scanProductWithTotal(rows)
		if err != nil {
			return SearchResult{}, err
		}
		total = totalCount
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return SearchResult{}, fmt.Errorf("iterate search rows: %w", err)
	}

	if err := r.attachMeta(ctx, products); err != nil {
		return SearchResult{}, err
	}

	return SearchResult{Products: products, Total: total}, nil
}

func (r *productRepository) buildConditions(compiled domain.CompiledQuery, builder *sqlBuilder) []string {
	conds := make([]string, 0, 8)

	kinds := make([]string, len(compiled.Kinds))
	for i, k := range compiled.Kinds {
		kinds[i] = string(k)
	}
	if len(kinds) > 0 {
		idx := builder.addArg(kinds)
		conds = append(conds, fmt.Sprintf("p.kind = ANY(%s)", builder.placeholder(idx)))
	}

	if len(compiled.Statuses) > 0 {
		idx := builder.addArg(compiled.Statuses)
		conds = append(conds, fmt.Sprintf("p.status = ANY(%s)", builder.placeholder(idx)))
	} else {
		conds = append(conds, "p.status <> 'trash'")
	}

	for _, group := range compiled.TaxGroups {
		if clause := r.renderTaxGroup(group, builder); clause != "" {
			conds = append(conds, clause)
		}
	}
	for _, group := range compiled.MetaGroups {
		if clause := r.renderMetaGroup(group, builder); clause != "" {
			conds = append(conds, clause)
		}
	}
	for _, fragment := range compiled.Fragments {
		conds = append(conds, builder.rewriteFragment(fragment))
	}

	return conds
}

func (r *productRepository) renderTaxGroup(group domain.TaxGroup, builder *sqlBuilder) string {
	parts := make([]string, 0, len(group.Conditions))
	for _, cond := range group.Conditions {
		if clause := r.renderTaxCondition(cond, builder); clause != "" {
			parts = append(parts, clause)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	relation := " AND "
	if strings.EqualFold(group.Relation, "OR") {
		relation = " OR "
	}
	return "(" + strings.Join(parts, relation) + ")"
}

func (r *productRepository) renderTaxCondition(cond domain.TaxCondition, builder *sqlBuilder) string {
	taxIdx := builder.addArg(cond.Taxonomy)
	taxPlaceholder := builder.placeholder(taxIdx)

	if cond.Operator == domain.TaxOperatorNotExists {
		return fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM term_relationships tr JOIN terms t ON t.id = tr.term_id WHERE tr.product_id = p.id AND t.taxonomy = %s)",
			taxPlaceholder)
	}

	var match string
	switch cond.Field {
	case domain.TermFieldSlug:
		idx := builder.addArg(cond.Terms)
		match = fmt.Sprintf("t.slug = ANY(%s)", builder.placeholder(idx))
	case domain.TermFieldID:
		idx := builder.addArg(cond.Terms)
		match = fmt.Sprintf("t.id::text = ANY(%s)", builder.placeholder(idx))
	case domain.TermFieldSearch:
		term := ""
		if len(cond.Terms) > 0 {
			term = cond.Terms[0]
		}
		idx := builder.addArg("%" + term + "%")
		match = fmt.Sprintf("t.name ILIKE %s", builder.placeholder(idx))
	default:
		idx := builder.addArg(cond.Terms)
		match = fmt.Sprintf("t.name = ANY(%s)", builder.placeholder(idx))
	}

	exists := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM term_relationships tr JOIN terms t ON t.id = tr.term_id WHERE tr.product_id = p.id AND t.taxonomy = %s AND %s)",
		taxPlaceholder, match)

	if cond.Operator == domain.TaxOperatorNotIn {
		return "NOT " + exists
	}
	return exists
}

func (r *productRepository) renderMetaGroup(group domain.MetaGroup, builder *sqlBuilder) string {
	parts := make([]string, 0, len(group.Conditions))
	for _, cond := range group.Conditions {
		if clause := r.renderMetaCondition(cond, builder); clause != "" {
			parts = append(parts, clause)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	relation := " AND "
	if strings.EqualFold(group.Relation, "OR") {
		relation = " OR "
	}
	return "(" + strings.Join(parts, relation) + ")"
}

func (r *productRepository) renderMetaCondition(cond domain.MetaCondition, builder *sqlBuilder) string {
	keyIdx := builder.addArg(cond.Key)
	keyPlaceholder := builder.placeholder(keyIdx)

	if cond.Compare == domain.MetaCompareNotExists {
		return fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM product_meta m WHERE m.product_id = p.id AND m.meta_key = %s)",
			keyPlaceholder)
	}

	var match string
	switch cond.Compare {
	case domain.MetaCompareLike:
		value := ""
		if len(cond.Values) > 0 {
			value = cond.Values[0]
		}
		idx := builder.addArg("%" + value + "%")
		match = fmt.Sprintf("m.meta_value LIKE %s", builder.placeholder(idx))
	case domain.MetaCompareIn:
		idx := builder.addArg(cond.Values)
		match = fmt.Sprintf("m.meta_value = ANY(%s)", builder.placeholder(idx))
	case domain.MetaCompareBetween:
		from, to := "0", "0"
		if len(cond.Values) > 0 {
			from = cond.Values[0]
		}
		if len(cond.Values) > 1 {
			to = cond.Values[1]
		}
		fromIdx := builder.addArg(from)
		toIdx := builder.addArg(to)
		match = fmt.Sprintf(
			"m.meta_value ~ '^-?[0-9]+(\\.[0-9]+)?$' AND m.meta_value::numeric BETWEEN %s::numeric AND %s::numeric",
			builder.placeholder(fromIdx), builder.placeholder(toIdx))
	default:
		value := ""
		if len(cond.Values) > 0 {
			value = cond.Values[0]
		}
		idx := builder.addArg(value)
		match = fmt.Sprintf("m.meta_value = %s", builder.placeholder(idx))
	}

	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM product_meta m WHERE m.product_id = p.id AND m.meta_key = %s AND %s)",
		keyPlaceholder, match)
}

// buildOrderClause renders the order spec. The default groups each
// variation immediately after its parent, parent first, ids ascending.
func (r *productRepository) buildOrderClause(order domain.OrderSpec, builder *sqlBuilder, sortMetaIdx int) string {
	if order.IsDefault() {
		return "ORDER BY (CASE WHEN p.parent_id = 0 THEN p.id ELSE p.parent_id END) ASC, " +
			"(CASE WHEN p.parent_id = 0 THEN 0 ELSE 1 END) ASC, p.id ASC"
	}

	direction := strings.ToUpper(order.Direction)
	if direction != "DESC" {
		direction = "ASC"
	}

	if order.Column != "" {
		return fmt.Sprintf("ORDER BY p.%s %s", order.Column, direction)
	}

	// Rows missing the sorted meta key fall back to their own id so the
	// order stays deterministic.
	return fmt.Sprintf(
		"ORDER BY (CASE WHEN sortmeta.meta_key = %s THEN sortmeta.meta_value ELSE p.id::text END) %s",
		builder.placeholder(sortMetaIdx), direction)
}

// TransitionKind rewrites the structural type of a product. The move back
// to the standalone representation clears the parent linkage.
func (r *productRepository) TransitionKind(ctx context.Context, id int64, kind domain.Kind) error {
	var err error
	if kind == domain.KindProduct {
		_, err = r.conn.Pool.Exec(ctx,
			`UPDATE products SET kind = $2, parent_id = 0, updated_at = now() WHERE id = $1`, id, kind)
	} else {
		_, err = r.conn.Pool.Exec(ctx,
			`UPDATE products SET kind = $2, updated_at = now() WHERE id = $1`, id, kind)
	}
	if err != nil {
		return fmt.Errorf("failed to transition product %d to %s: %w", id, kind, err)
	}
	return nil
}

// DistinctMetaKeys lists meta keys in use, excluding variation attribute
// value keys.
func (r *productRepository) DistinctMetaKeys(ctx context.Context) ([]string, error) {
	rows, err := r.conn.Pool.Query(ctx,
		`SELECT DISTINCT pm.meta_key
		 FROM product_meta pm
		 JOIN products p ON pm.product_id = p.id
		 WHERE pm.meta_key NOT LIKE 'attribute\_%'
		 ORDER BY pm.meta_key ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list meta keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan meta key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// LocalAttributeInventory scans attribute blobs for local (non-taxonomy)
// attributes and aggregates their known values.
func (r *productRepository) LocalAttributeInventory(ctx context.Context) (map[string][]string, error) {
	rows, err := r.conn.Pool.Query(ctx,
		`SELECT meta_value FROM product_meta WHERE meta_key = $1`, AttributeBlobMetaKey)
	if err != nil {
		return nil, fmt.Errorf("failed to scan attribute blobs: %w", err)
	}
	defer rows.Close()

	inventory := make(map[string][]string)
	seen := make(map[string]map[string]struct{})

	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan attribute blob: %w", err)
		}
		attrs := make(map[string]domain.Attribute)
		if err := json.Unmarshal([]byte(blob), &attrs); err != nil {
			continue // tolerate malformed blobs rather than failing the inventory
		}
		for _, attr := range attrs {
			if attr.IsGlobal() {
				continue
			}
			if seen[attr.Name] == nil {
				seen[attr.Name] = make(map[string]struct{})
			}
			for _, option := range attr.Options {
				option = strings.TrimSpace(option)
				if option == "" {
					continue
				}
				if _, ok := seen[attr.Name][option]; ok {
					continue
				}
				seen[attr.Name][option] = struct{}{}
				inventory[attr.Name] = append(inventory[attr.Name], option)
			}
			if _, ok := inventory[attr.Name]; !ok {
				inventory[attr.Name] = []string{}
			}
		}
	}
	return inventory, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProducts(rows pgx.Rows) ([]domain.Product, error) {
	var products []domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p         domain.Product
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&p.ID, &p.ParentID, &p.Kind, &p.Title, &p.Slug,
		&p.Description, &p.ShortDescription, &p.Status, &p.MenuOrder,
		&createdAt, &updatedAt); err != nil {
		return domain.Product{}, fmt.Errorf("scan product row: %w", err)
	}
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt
	return p, nil
}

func scanProductWithTotal(row rowScanner) (domain.Product, int, error) {
	var (
		p         domain.Product
		createdAt time.Time
		updatedAt time.Time
		total     int
	)
	if err := row.Scan(&p.ID, &p.ParentID, &p.Kind, &p.Title, &p.Slug,
		&p.Description, &p.ShortDescription, &p.Status, &p.MenuOrder,
		&createdAt, &updatedAt, &total); err != nil {
		return domain.Product{}, 0, fmt.Errorf("scan search row: %w", err)
	}
	p.CreatedAt = createdAt
	p.UpdatedAt = updatedAt
	return p, total, nil
}
