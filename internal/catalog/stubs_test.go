package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/gridworks/catalogbridge/internal/domain"
	"github.com/gridworks/catalogbridge/internal/repository"
)

// memStore is a shared in-memory backing for the stub repositories.
type memStore struct {
	products      map[int64]domain.Product
	nextProductID int64

	taxonomies map[string]domain.AttributeTaxonomy
	nextTaxID  int64

	terms      map[int64]domain.Term
	nextTermID int64

	// productID -> termID set
	relationships map[int64]map[int64]struct{}
}

func newMemStore() *memStore {
	return &memStore{
		products:      make(map[int64]domain.Product),
		taxonomies:    make(map[string]domain.AttributeTaxonomy),
		terms:         make(map[int64]domain.Term),
		relationships: make(map[int64]map[int64]struct{}),
	}
}

func copyProduct(p domain.Product) domain.Product {
	out := p
	if p.Meta != nil {
		out.Meta = make(map[string]string, len(p.Meta))
		for k, v := range p.Meta {
			out.Meta[k] = v
		}
	}
	if p.Attributes != nil {
		out.Attributes = make(map[string]domain.Attribute, len(p.Attributes))
		for k, v := range p.Attributes {
			out.Attributes[k] = v.Clone()
		}
	}
	if p.AttributeValues != nil {
		out.AttributeValues = make(map[string]string, len(p.AttributeValues))
		for k, v := range p.AttributeValues {
			out.AttributeValues[k] = v
		}
	}
	return out
}

type stubProductRepo struct {
	store *memStore
}

func (r *stubProductRepo) Create(_ context.Context, product *domain.Product) (int64, error) {
	r.store.nextProductID++
	product.ID = r.store.nextProductID
	r.store.products[product.ID] = copyProduct(*product)
	product.ClearChanges()
	return product.ID, nil
}

func (r *stubProductRepo) Update(_ context.Context, product *domain.Product) error {
	if _, ok := r.store.products[product.ID]; !ok {
		return repository.ErrNotFound
	}
	r.store.products[product.ID] = copyProduct(*product)
	product.ClearChanges()
	return nil
}

func (r *stubProductRepo) GetByID(_ context.Context, id int64) (domain.Product, error) {
	p, ok := r.store.products[id]
	if !ok {
		return domain.Product{}, repository.ErrNotFound
	}
	return copyProduct(p), nil
}

func (r *stubProductRepo) GetByIDs(_ context.Context, ids []int64) ([]domain.Product, error) {
	var out []domain.Product
	for _, id := range ids {
		if p, ok := r.store.products[id]; ok {
			out = append(out, copyProduct(p))
		}
	}
	return out, nil
}

func (r *stubProductRepo) GetIDBySKU(_ context.Context, sku string) (int64, error) {
	var best int64
	for id, p := range r.store.products {
		if p.Meta[repository.SKUMetaKey] == sku {
			if best == 0 || id < best {
				best = id
			}
		}
	}
	return best, nil
}

func (r *stubProductRepo) FindIDsByTitle(_ context.Context, title string) ([]int64, error) {
	return r.findIDs(func(p domain.Product) bool { return p.Title == title }), nil
}

func (r *stubProductRepo) FindIDsBySlug(_ context.Context, slug string) ([]int64, error) {
	return r.findIDs(func(p domain.Product) bool { return p.Slug == slug }), nil
}

func (r *stubProductRepo) findIDs(match func(domain.Product) bool) []int64 {
	var ids []int64
	for id, p := range r.store.products {
		if match(p) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *stubProductRepo) Search(_ context.Context, compiled domain.CompiledQuery, page, perPage int) (repository.SearchResult, error) {
	kinds := make(map[domain.Kind]struct{}, len(compiled.Kinds))
	for _, k := range compiled.Kinds {
		kinds[k] = struct{}{}
	}

	var all []domain.Product
	for _, p := range r.store.products {
		if len(kinds) > 0 {
			if _, ok := kinds[p.Kind]; !ok {
				continue
			}
		}
		all = append(all, copyProduct(p))
	}
	if compiled.Order.IsDefault() {
		// Each variation sorts immediately after its parent, parent first.
		group := func(p domain.Product) int64 {
			if p.ParentID != 0 {
				return p.ParentID
			}
			return p.ID
		}
		sort.Slice(all, func(i, j int) bool {
			gi, gj := group(all[i]), group(all[j])
			if gi != gj {
				return gi < gj
			}
			if (all[i].ParentID == 0) != (all[j].ParentID == 0) {
				return all[i].ParentID == 0
			}
			return all[i].ID < all[j].ID
		})
	} else {
		sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	}

	total := len(all)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return repository.SearchResult{Products: all[start:end], Total: total}, nil
}

func (r *stubProductRepo) TransitionKind(_ context.Context, id int64, kind domain.Kind) error {
	p, ok := r.store.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Kind = kind
	if kind == domain.KindProduct {
		p.ParentID = 0
	}
	r.store.products[id] = p
	return nil
}

func (r *stubProductRepo) DistinctMetaKeys(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, p := range r.store.products {
		for key := range p.Meta {
			if strings.HasPrefix(key, repository.AttributeValuePrefix) {
				continue
			}
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *stubProductRepo) LocalAttributeInventory(_ context.Context) (map[string][]string, error) {
	inventory := make(map[string][]string)
	for _, p := range r.store.products {
		for _, attr := range p.Attributes {
			if attr.IsGlobal() {
				continue
			}
			inventory[attr.Name] = append(inventory[attr.Name], attr.Options...)
		}
	}
	return inventory, nil
}

type stubTermRepo struct {
	store *memStore
}

func (r *stubTermRepo) EnsureAttributeTaxonomy(_ context.Context, name, label string) (domain.AttributeTaxonomy, error) {
	if existing, ok := r.store.taxonomies[name]; ok {
		return existing, nil
	}
	r.store.nextTaxID++
	taxonomy := domain.AttributeTaxonomy{ID: r.store.nextTaxID, Name: name, Label: label, Type: "text"}
	r.store.taxonomies[name] = taxonomy
	return taxonomy, nil
}

func (r *stubTermRepo) AttributeTaxonomyByName(_ context.Context, name string) (domain.AttributeTaxonomy, bool, error) {
	taxonomy, ok := r.store.taxonomies[name]
	return taxonomy, ok, nil
}

func (r *stubTermRepo) ListAttributeTaxonomies(_ context.Context) ([]domain.AttributeTaxonomy, error) {
	out := make([]domain.AttributeTaxonomy, 0, len(r.store.taxonomies))
	for _, taxonomy := range r.store.taxonomies {
		out = append(out, taxonomy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *stubTermRepo) TermByName(_ context.Context, taxonomy, name string) (domain.Term, bool, error) {
	for _, term := range r.sortedTerms() {
		if term.Taxonomy == taxonomy && term.Name == name {
			return term, true, nil
		}
	}
	return domain.Term{}, false, nil
}

func (r *stubTermRepo) EnsureTerm(_ context.Context, taxonomy, name string, parentID int64) (domain.Term, error) {
	for _, term := range r.sortedTerms() {
		if term.Taxonomy == taxonomy && term.Name == name && term.ParentID == parentID {
			return term, nil
		}
	}
	r.store.nextTermID++
	term := domain.Term{
		ID:       r.store.nextTermID,
		Taxonomy: taxonomy,
		Name:     name,
		Slug:     domain.Slugify(name),
		ParentID: parentID,
	}
	r.store.terms[term.ID] = term
	return term, nil
}

func (r *stubTermRepo) TermNames(_ context.Context, taxonomy string) ([]string, error) {
	var names []string
	for _, term := range r.sortedTerms() {
		if term.Taxonomy == taxonomy {
			names = append(names, term.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (r *stubTermRepo) PathNames(_ context.Context, termID int64) ([]string, error) {
	var names []string
	for id := termID; id != 0; {
		term, ok := r.store.terms[id]
		if !ok {
			break
		}
		names = append([]string{term.Name}, names...)
		id = term.ParentID
	}
	return names, nil
}

func (r *stubTermRepo) ObjectTerms(_ context.Context, productID int64, taxonomy string) ([]domain.Term, error) {
	var out []domain.Term
	for termID := range r.store.relationships[productID] {
		term := r.store.terms[termID]
		if term.Taxonomy == taxonomy {
			out = append(out, term)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *stubTermRepo) ObjectTermsForProducts(ctx context.Context, productIDs []int64, taxonomies []string) (map[int64][]domain.Term, error) {
	taxSet := make(map[string]struct{}, len(taxonomies))
	for _, taxonomy := range taxonomies {
		taxSet[taxonomy] = struct{}{}
	}
	out := make(map[int64][]domain.Term, len(productIDs))
	for _, productID := range productIDs {
		for termID := range r.store.relationships[productID] {
			term := r.store.terms[termID]
			if _, ok := taxSet[term.Taxonomy]; ok {
				out[productID] = append(out[productID], term)
			}
		}
		sort.Slice(out[productID], func(i, j int) bool { return out[productID][i].ID < out[productID][j].ID })
	}
	return out, nil
}

func (r *stubTermRepo) SetObjectTerms(_ context.Context, productID int64, taxonomy string, termIDs []int64) error {
	assigned := r.store.relationships[productID]
	if assigned == nil {
		assigned = make(map[int64]struct{})
		r.store.relationships[productID] = assigned
	}
	for termID := range assigned {
		if r.store.terms[termID].Taxonomy == taxonomy {
			delete(assigned, termID)
		}
	}
	for _, termID := range termIDs {
		assigned[termID] = struct{}{}
	}
	return nil
}

func (r *stubTermRepo) AddObjectTerm(_ context.Context, productID int64, termID int64) error {
	if r.store.relationships[productID] == nil {
		r.store.relationships[productID] = make(map[int64]struct{})
	}
	r.store.relationships[productID][termID] = struct{}{}
	return nil
}

func (r *stubTermRepo) RemoveObjectTerm(_ context.Context, productID int64, taxonomy, slug string) error {
	for termID := range r.store.relationships[productID] {
		term := r.store.terms[termID]
		if term.Taxonomy == taxonomy && term.Slug == slug {
			delete(r.store.relationships[productID], termID)
		}
	}
	return nil
}

func (r *stubTermRepo) sortedTerms() []domain.Term {
	out := make([]domain.Term, 0, len(r.store.terms))
	for _, term := range r.store.terms {
		out = append(out, term)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// newTestService builds a service over fresh in-memory repositories.
func newTestService() (*Service, *stubProductRepo, *stubTermRepo) {
	store := newMemStore()
	products := &stubProductRepo{store: store}
	terms := &stubTermRepo{store: store}

	parents := func(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
		loaded, err := products.GetByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		out := make(map[int64]domain.Product, len(loaded))
		for _, p := range loaded {
			out[p.ID] = p
		}
		return out, nil
	}

	projector := NewProjector(terms, parents)
	return NewService(products, terms, projector), products, terms
}
