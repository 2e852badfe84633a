package repository

import (
	"context"

	"github.com/gridworks/catalogbridge/internal/domain"
)

// SearchResult is one page of a compiled listing query.
type SearchResult struct {
	Products []domain.Product
	Total    int
}

// ProductRepository reads and writes catalog products, their meta and
// attribute payloads.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) (int64, error)
	Update(ctx context.Context, product *domain.Product) error
	GetByID(ctx context.Context, id int64) (domain.Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]domain.Product, error)
	GetIDBySKU(ctx context.Context, sku string) (int64, error)
	FindIDsByTitle(ctx context.Context, title string) ([]int64, error)
	FindIDsBySlug(ctx context.Context, slug string) ([]int64, error)

	// Search runs a compiled query with pagination and returns the page
	// plus the unpaginated total.
	Search(ctx context.Context, compiled domain.CompiledQuery, page, perPage int) (SearchResult, error)

	// TransitionKind rewrites the structural representation of a product.
	// Moving to the standalone representation clears the parent linkage.
	TransitionKind(ctx context.Context, id int64, kind domain.Kind) error

	// DistinctMetaKeys lists custom meta keys present across the catalog,
	// excluding attribute value keys.
	DistinctMetaKeys(ctx context.Context) ([]string, error)

	// LocalAttributeInventory scans stored attribute blobs and returns the
	// local attribute names with their known values.
	LocalAttributeInventory(ctx context.Context) (map[string][]string, error)
}

// TermRepository manages taxonomies, terms and product/term assignments.
type TermRepository interface {
	EnsureAttributeTaxonomy(ctx context.Context, name, label string) (domain.AttributeTaxonomy, error)
	AttributeTaxonomyByName(ctx context.Context, name string) (domain.AttributeTaxonomy, bool, error)
	ListAttributeTaxonomies(ctx context.Context) ([]domain.AttributeTaxonomy, error)

	TermByName(ctx context.Context, taxonomy, name string) (domain.Term, bool, error)
	EnsureTerm(ctx context.Context, taxonomy, name string, parentID int64) (domain.Term, error)
	TermNames(ctx context.Context, taxonomy string) ([]string, error)

	// PathNames returns the term's ancestor names root-first, ending with
	// the term itself.
	PathNames(ctx context.Context, termID int64) ([]string, error)

	ObjectTerms(ctx context.Context, productID int64, taxonomy string) ([]domain.Term, error)
	ObjectTermsForProducts(ctx context.Context, productIDs []int64, taxonomies []string) (map[int64][]domain.Term, error)
	SetObjectTerms(ctx context.Context, productID int64, taxonomy string, termIDs []int64) error
	AddObjectTerm(ctx context.Context, productID int64, termID int64) error
	RemoveObjectTerm(ctx context.Context, productID int64, taxonomy, slug string) error
}
