package repository

import (
	"strings"
	"testing"

	"github.com/gridworks/catalogbridge/internal/domain"
)

func TestBuildOrderClauseDefaultGroupsVariationsAfterParent(t *testing.T) {
	r := &productRepository{}
	got := r.buildOrderClause(domain.OrderSpec{}, newSQLBuilder(), 0)

	want := "ORDER BY (CASE WHEN p.parent_id = 0 THEN p.id ELSE p.parent_id END) ASC, " +
		"(CASE WHEN p.parent_id = 0 THEN 0 ELSE 1 END) ASC, p.id ASC"
	if got != want {
		t.Fatalf("default order clause = %q, want %q", got, want)
	}
}

func TestBuildOrderClauseColumn(t *testing.T) {
	r := &productRepository{}
	got := r.buildOrderClause(domain.OrderSpec{Column: "title", Direction: "DESC"}, newSQLBuilder(), 0)
	if got != "ORDER BY p.title DESC" {
		t.Fatalf("column order clause = %q", got)
	}
}

func TestBuildOrderClauseMetaFallsBackToID(t *testing.T) {
	r := &productRepository{}
	builder := newSQLBuilder()
	idx := builder.addArg("_price")

	got := r.buildOrderClause(domain.OrderSpec{MetaKey: "_price", Direction: "ASC"}, builder, idx)
	if !strings.Contains(got, "sortmeta.meta_value") || !strings.Contains(got, "p.id::text") {
		t.Fatalf("meta order must fall back to id for rows missing the key, got %q", got)
	}
	if !strings.HasSuffix(got, "ASC") {
		t.Fatalf("direction missing: %q", got)
	}
}

func TestRewriteFragmentBindsPositionalArgs(t *testing.T) {
	builder := newSQLBuilder()
	builder.addArg("occupied")

	got := builder.rewriteFragment(domain.Fragment{
		SQL:  "p.title LIKE ? AND p.menu_order = ?",
		Args: []any{"%shirt%", 3},
	})
	if got != "p.title LIKE $2 AND p.menu_order = $3" {
		t.Fatalf("rewritten fragment = %q", got)
	}
	if len(builder.args) != 3 || builder.args[1] != "%shirt%" || builder.args[2] != 3 {
		t.Fatalf("bound args = %v", builder.args)
	}
}
