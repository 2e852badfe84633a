package catalog

import (
	"context"
	"fmt"

	"github.com/gridworks/catalogbridge/internal/domain"
	"github.com/gridworks/catalogbridge/internal/repository"
)

// TransitionManager moves products between types, including the structural
// swap between the standalone and variation representations.
type TransitionManager struct {
	products repository.ProductRepository
	terms    repository.TermRepository
}

// NewTransitionManager creates a type transition manager.
func NewTransitionManager(products repository.ProductRepository, terms repository.TermRepository) *TransitionManager {
	return &TransitionManager{products: products, terms: terms}
}

// ChangeType changes the product's type. An unknown type is a no-op
// returning the original product. A type change across the
// standalone/variation boundary rewrites the storage representation; the
// returned product is re-instantiated from storage with the caller's
// pending edits replayed onto it.
func (m *TransitionManager) ChangeType(ctx context.Context, product *domain.Product, newType string) (*domain.Product, error) {
	if _, known := domain.KnownProductTypes()[newType]; !known {
		return product, nil
	}

	currentType := product.Type
	if currentType == "" {
		currentType = m.currentType(ctx, product)
	}
	if currentType == newType {
		product.Type = newType
		return product, nil
	}

	currentIsVariation := currentType == domain.TypeVariation
	newIsVariation := newType == domain.TypeVariation

	if currentIsVariation != newIsVariation {
		kind := domain.KindProduct
		if newIsVariation {
			kind = domain.KindVariation
		}
		if err := m.products.TransitionKind(ctx, product.ID, kind); err != nil {
			return nil, err
		}
	}

	// Variations carry no type term.
	if !currentIsVariation && currentType != "" {
		if err := m.terms.RemoveObjectTerm(ctx, product.ID, domain.TaxonomyProductType, currentType); err != nil {
			return nil, fmt.Errorf("failed to remove type term %q: %w", currentType, err)
		}
	}
	if !newIsVariation {
		term, err := m.terms.EnsureTerm(ctx, domain.TaxonomyProductType, newType, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure type term %q: %w", newType, err)
		}
		if err := m.terms.SetObjectTerms(ctx, product.ID, domain.TaxonomyProductType, []int64{term.ID}); err != nil {
			return nil, fmt.Errorf("failed to assign type term %q: %w", newType, err)
		}
	}

	changes := product.Changes()

	fresh, err := m.products.GetByID(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload product %d after type change: %w", product.ID, err)
	}
	fresh.ApplyChanges(changes)
	fresh.Type = newType

	return &fresh, nil
}

func (m *TransitionManager) currentType(ctx context.Context, product *domain.Product) string {
	if product.IsVariation() {
		return domain.TypeVariation
	}
	terms, err := m.terms.ObjectTerms(ctx, product.ID, domain.TaxonomyProductType)
	if err != nil || len(terms) == 0 {
		return ""
	}
	return terms[0].Slug
}
