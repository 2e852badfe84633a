package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gridworks/catalogbridge/internal/db"
	"github.com/gridworks/catalogbridge/internal/domain"
)

type termRepository struct {
	conn *db.Connection
}

// NewTermRepository creates a new term repository.
func NewTermRepository(conn *db.Connection) TermRepository {
	return &termRepository{conn: conn}
}

// EnsureAttributeTaxonomy returns the registered attribute taxonomy,
// creating it when missing.
func (r *termRepository) EnsureAttributeTaxonomy(ctx context.Context, name, label string) (domain.AttributeTaxonomy, error) {
	existing, found, err := r.AttributeTaxonomyByName(ctx, name)
	if err != nil {
		return domain.AttributeTaxonomy{}, err
	}
	if found {
		return existing, nil
	}

	var taxonomy domain.AttributeTaxonomy
	err = r.conn.Pool.QueryRow(ctx,
		`INSERT INTO attribute_taxonomies (name, label, type)
		 VALUES ($1, $2, 'text')
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, name, label, type`,
		name, label,
	).Scan(&taxonomy.ID, &taxonomy.Name, &taxonomy.Label, &taxonomy.Type)
	if err != nil {
		return domain.AttributeTaxonomy{}, fmt.Errorf("failed to ensure attribute taxonomy %q: %w", name, err)
	}
	return taxonomy, nil
}

func (r *termRepository) AttributeTaxonomyByName(ctx context.Context, name string) (domain.AttributeTaxonomy, bool, error) {
	var taxonomy domain.AttributeTaxonomy
	err := r.conn.Pool.QueryRow(ctx,
		`SELECT id, name, label, type FROM attribute_taxonomies WHERE name = $1`, name,
	).Scan(&taxonomy.ID, &taxonomy.Name, &taxonomy.Label, &taxonomy.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AttributeTaxonomy{}, false, nil
	}
	if err != nil {
		return domain.AttributeTaxonomy{}, false, fmt.Errorf("failed to get attribute taxonomy %q: %w", name, err)
	}
	return taxonomy, true, nil
}

func (r *termRepository) ListAttributeTaxonomies(ctx context.Context) ([]domain.AttributeTaxonomy, error) {
	rows, err := r.conn.Pool.Query(ctx,
		`SELECT id, name, label, type FROM attribute_taxonomies ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list attribute taxonomies: %w", err)
	}
	defer rows.Close()

	var taxonomies []domain.AttributeTaxonomy
	for rows.Next() {
		var taxonomy domain.AttributeTaxonomy
		if err := rows.Scan(&taxonomy.ID, &taxonomy.Name, &taxonomy.Label, &taxonomy.Type); err != nil {
			return nil, fmt.Errorf("scan attribute taxonomy: %w", err)
		}
		taxonomies = append(taxonomies, taxonomy)
	}
	return taxonomies, rows.Err()
}

// TermByName looks up a term by exact name within a taxonomy.
func (r *termRepository) TermByName(ctx context.Context, taxonomy, name string) (domain.Term, bool, error) {
	var term domain.Term
	err := r.conn.Pool.QueryRow(ctx,
		`SELECT id, taxonomy, name, slug, parent_id FROM terms
		 WHERE taxonomy = $1 AND name = $2
		 ORDER BY id LIMIT 1`,
		taxonomy, name,
	).Scan(&term.ID, &term.Taxonomy, &term.Name, &term.Slug, &term.ParentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Term{}, false, nil
	}
	if err != nil {
		return domain.Term{}, false, fmt.Errorf("failed to get term %q in %s: %w", name, taxonomy, err)
	}
	return term, true, nil
}

// EnsureTerm returns the named term under the given parent, creating it
// when missing.
func (r *termRepository) EnsureTerm(ctx context.Context, taxonomy, name string, parentID int64) (domain.Term, error) {
	var term domain.Term
	err := r.conn.Pool.QueryRow(ctx,
		`SELECT id, taxonomy, name, slug, parent_id FROM terms
		 WHERE taxonomy = $1 AND name = $2 AND parent_id = $3
		 ORDER BY id LIMIT 1`,
		taxonomy, name, parentID,
	).Scan(&term.ID, &term.Taxonomy, &term.Name, &term.Slug, &term.ParentID)
	if err == nil {
		return term, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Term{}, fmt.Errorf("failed to look up term %q in %s: %w", name, taxonomy, err)
	}

	slug := r.uniqueSlug(ctx, taxonomy, domain.Slugify(name))
	err = r.conn.Pool.QueryRow(ctx,
		`INSERT INTO terms (taxonomy, name, slug, parent_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, taxonomy, name, slug, parent_id`,
		taxonomy, name, slug, parentID,
	).Scan(&term.ID, &term.Taxonomy, &term.Name, &term.Slug, &term.ParentID)
	if err != nil {
		return domain.Term{}, fmt.Errorf("failed to create term %q in %s: %w", name, taxonomy, err)
	}
	return term, nil
}

// uniqueSlug appends a numeric suffix while the slug is already taken
// within the taxonomy.
func (r *termRepository) uniqueSlug(ctx context.Context, taxonomy, slug string) string {
	candidate := slug
	for i := 2; ; i++ {
		var exists bool
		err := r.conn.Pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM terms WHERE taxonomy = $1 AND slug = $2)`,
			taxonomy, candidate,
		).Scan(&exists)
		if err != nil || !exists {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", slug, i)
	}
}

func (r *termRepository) TermNames(ctx context.Context, taxonomy string) ([]string, error) {
	rows, err := r.conn.Pool.Query(ctx,
		`SELECT name FROM terms WHERE taxonomy = $1 ORDER BY name ASC`, taxonomy)
	if err != nil {
		return nil, fmt.Errorf("failed to list terms for %s: %w", taxonomy, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan term name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// PathNames walks the parent chain and returns the names root-first,
// ending with the term itself.
func (r *termRepository) PathNames(ctx context.Context, termID int64) ([]string, error) {
	rows, err := r.conn.Pool.Query(ctx,
		`WITH RECURSIVE ancestry AS (
		     SELECT id, name, parent_id, 0 AS depth
		     FROM terms WHERE id = $1
		     UNION ALL
		     SELECT t.id, t.name, t.parent_id, a.depth + 1
		     FROM terms t
		     JOIN ancestry a ON t.id = a.parent_id
		 )
		 SELECT name FROM ancestry ORDER BY depth DESC`,
		termID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve term path for %d: %w", termID, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan term path row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *termRepository) ObjectTerms(ctx context.Context, productID int64, taxonomy string) ([]domain.Term, error) {
	rows, err := r.conn.Pool.Query(ctx,
		`SELECT t.id, t.taxonomy, t.name, t.slug, t.parent_id
		 FROM term_relationships tr
		 JOIN terms t ON t.id = tr.term_id
		 WHERE tr.product_id = $1 AND t.taxonomy = $2
		 ORDER BY t.id ASC`,
		productID, taxonomy)
	if err != nil {
		return nil, fmt.Errorf("failed to load terms for product %d: %w", productID, err)
	}
	defer rows.Close()

	return scanTerms(rows)
}

// ObjectTermsForProducts loads term assignments for a set of products in
// one query, grouped by product id.
func (r *termRepository) ObjectTermsForProducts(ctx context.Context, productIDs []int64, taxonomies []string) (map[int64][]domain.Term, error) {
	result := make(map[int64][]domain.Term, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	rows, err := r.conn.Pool.Query(ctx,
		`SELECT tr.product_id, t.id, t.taxonomy, t.name, t.slug, t.parent_id
		 FROM term_relationships tr
		 JOIN terms t ON t.id = tr.term_id
		 WHERE tr.product_id = ANY($1) AND t.taxonomy = ANY($2)
		 ORDER BY t.id ASC`,
		productIDs, taxonomies)
	if err != nil {
		return nil, fmt.Errorf("failed to load terms for products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID int64
			term      domain.Term
		)
		if err := rows.Scan(&productID, &term.ID, &term.Taxonomy, &term.Name, &term.Slug, &term.ParentID); err != nil {
			return nil, fmt.Errorf("scan product term row: %w", err)
		}
		result[productID] = append(result[productID], term)
	}
	return result, rows.Err()
}

// SetObjectTerms replaces the product's assignments within one taxonomy.
func (r *termRepository) SetObjectTerms(ctx context.Context, productID int64, taxonomy string, termIDs []int64) error {
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM term_relationships tr
			 USING terms t
			 WHERE tr.term_id = t.id AND tr.product_id = $1 AND t.taxonomy = $2`,
			productID, taxonomy,
		); err != nil {
			return fmt.Errorf("clear assignments: %w", err)
		}
		for _, termID := range termIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO term_relationships (product_id, term_id)
				 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				productID, termID,
			); err != nil {
				return fmt.Errorf("assign term %d: %w", termID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set %s terms for product %d: %w", taxonomy, productID, err)
	}
	return nil
}

func (r *termRepository) AddObjectTerm(ctx context.Context, productID int64, termID int64) error {
	_, err := r.conn.Pool.Exec(ctx,
		`INSERT INTO term_relationships (product_id, term_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		productID, termID)
	if err != nil {
		return fmt.Errorf("failed to assign term %d to product %d: %w", termID, productID, err)
	}
	return nil
}

func (r *termRepository) RemoveObjectTerm(ctx context.Context, productID int64, taxonomy, slug string) error {
	_, err := r.conn.Pool.Exec(ctx,
		`DELETE FROM term_relationships tr
		 USING terms t
		 WHERE tr.term_id = t.id AND tr.product_id = $1 AND t.taxonomy = $2 AND t.slug = $3`,
		productID, taxonomy, slug)
	if err != nil {
		return fmt.Errorf("failed to remove %s/%s from product %d: %w", taxonomy, slug, productID, err)
	}
	return nil
}

func scanTerms(rows pgx.Rows) ([]domain.Term, error) {
	var terms []domain.Term
	for rows.Next() {
		var term domain.Term
		if err := rows.Scan(&term.ID, &term.Taxonomy, &term.Name, &term.Slug, &term.ParentID); err != nil {
			return nil, fmt.Errorf("scan term row: %w", err)
		}
		terms = append(terms, term)
	}
	return terms, rows.Err()
}
