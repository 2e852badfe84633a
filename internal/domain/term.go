package domain

// Built-in taxonomies. Attribute taxonomies are created lazily and carry
// the "pa_" prefix in their name.
const (
	TaxonomyProductType = "product_type"
	TaxonomyCategory    = "product_cat"
	TaxonomyTag         = "product_tag"
	TaxonomyVisibility  = "product_visibility"
)

// AttributeTaxonomy is a shared, named attribute definition whose terms are
// reused across products.
type AttributeTaxonomy struct {
	ID    int64
	Name  string
	Label string
	Type  string
}

// Term is one value under a taxonomy. ParentID forms a hierarchy for
// category-style taxonomies.
type Term struct {
	ID       int64
	Taxonomy string
	Name     string
	Slug     string
	ParentID int64
}
