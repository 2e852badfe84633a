package domain

// TermField selects which term column a taxonomy condition compares.
type TermField string

const (
	TermFieldID     TermField = "term_id"
	TermFieldSlug   TermField = "slug"
	TermFieldName   TermField = "name"
	TermFieldSearch TermField = "search"
)

// TaxOperator is the comparison applied to a taxonomy condition.
type TaxOperator string

const (
	TaxOperatorIn        TaxOperator = "IN"
	TaxOperatorNotIn     TaxOperator = "NOT IN"
	TaxOperatorNotExists TaxOperator = "NOT EXISTS"
)

// TaxCondition restricts products by term assignment in one taxonomy.
type TaxCondition struct {
	Taxonomy string
	Field    TermField
	Terms    []string
	Operator TaxOperator
}

// TaxGroup combines taxonomy conditions with one relation (AND/OR).
type TaxGroup struct {
	Relation   string
	Conditions []TaxCondition
}

// MetaCompare is the comparison applied to a meta condition.
type MetaCompare string

const (
	MetaCompareEquals    MetaCompare = "="
	MetaCompareLike      MetaCompare = "LIKE"
	MetaCompareIn        MetaCompare = "IN"
	MetaCompareBetween   MetaCompare = "BETWEEN"
	MetaCompareNotExists MetaCompare = "NOT EXISTS"
)

// MetaCondition restricts products by one meta key/value comparison.
type MetaCondition struct {
	Key     string
	Values  []string
	Compare MetaCompare
}

// MetaGroup combines meta conditions with one relation (AND/OR).
type MetaGroup struct {
	Relation   string
	Conditions []MetaCondition
}

// Fragment is a raw parameterized WHERE predicate. SQL uses ? placeholders
// which the repository rewrites into positional arguments; user input is
// always bound, never concatenated.
type Fragment struct {
	SQL  string
	Args []any
}

// OrderSpec describes the listing order. A zero value means the default
// parent-first contiguous grouping of products with their variations.
type OrderSpec struct {
	Column    string
	MetaKey   string
	Direction string
}

// IsDefault reports whether no explicit sort was requested.
func (o OrderSpec) IsDefault() bool {
	return o.Column == "" && o.MetaKey == ""
}

// CompiledQuery is the store-agnostic output of the filter compiler.
type CompiledQuery struct {
	TaxGroups  []TaxGroup
	MetaGroups []MetaGroup
	Fragments  []Fragment

	Kinds    []Kind
	Statuses []string

	// Search OR-extends the WHERE clause with a SKU-meta LIKE match.
	Search string

	Order OrderSpec
}

// AddTaxGroup appends one taxonomy condition group.
func (q *CompiledQuery) AddTaxGroup(relation string, conditions ...TaxCondition) {
	q.TaxGroups = append(q.TaxGroups, TaxGroup{Relation: relation, Conditions: conditions})
}

// AddMetaGroup appends one meta condition group.
func (q *CompiledQuery) AddMetaGroup(relation string, conditions ...MetaCondition) {
	q.MetaGroups = append(q.MetaGroups, MetaGroup{Relation: relation, Conditions: conditions})
}

// AddFragment appends one raw parameterized predicate.
func (q *CompiledQuery) AddFragment(sql string, args ...any) {
	q.Fragments = append(q.Fragments, Fragment{SQL: sql, Args: args})
}
