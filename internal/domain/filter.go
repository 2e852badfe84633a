package domain

import (
	"encoding/json"
	"strings"
)

// ComparisonMode selects how a filter clause compares values.
type ComparisonMode string

const (
	// ModeContains matches with LIKE for scalar queries, IN for lists, and
	// pattern-match for local-attribute fields.
	ModeContains ComparisonMode = "contains"
	// ModeRange matches a numeric BETWEEN using From/To.
	ModeRange ComparisonMode = "range"
	// ModeEmpty matches absent, empty-string or zero values.
	ModeEmpty ComparisonMode = "empty"
	// Image-count modes, only meaningful for the images pseudo-field.
	ModeOne  ComparisonMode = "one"
	ModeMany ComparisonMode = "many"
	ModeNone ComparisonMode = "none"
)

// QueryValue accepts either a single string or a list of strings from the
// client. List reports which form arrived, since scalar queries compare
// with LIKE while lists compare with IN.
type QueryValue struct {
	Values []string
	List   bool
}

func (q *QueryValue) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		q.Values = []string{single}
		q.List = false
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	q.Values = many
	q.List = true
	return nil
}

func (q QueryValue) MarshalJSON() ([]byte, error) {
	if q.List {
		return json.Marshal(q.Values)
	}
	if len(q.Values) == 0 {
		return json.Marshal("")
	}
	return json.Marshal(q.Values[0])
}

// IsEmpty reports whether no usable query value arrived.
func (q QueryValue) IsEmpty() bool {
	for _, v := range q.Values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// First returns the scalar query value.
func (q QueryValue) First() string {
	if len(q.Values) == 0 {
		return ""
	}
	return q.Values[0]
}

// Contains reports whether the query set includes the given value.
func (q QueryValue) Contains(value string) bool {
	for _, v := range q.Values {
		if v == value {
			return true
		}
	}
	return false
}

// FilterClause is one declarative condition contributed by the client.
type FilterClause struct {
	Field    string         `json:"field"`
	Mode     ComparisonMode `json:"comparisonMode"`
	Query    QueryValue     `json:"query"`
	From     *float64       `json:"from,omitempty"`
	To       *float64       `json:"to,omitempty"`
	Taxonomy string         `json:"taxonomy,omitempty"`
	Type     string         `json:"type,omitempty"`
	Active   bool           `json:"active"`
}

// SortOption orders the listing; Field resolves to a core column or falls
// back to a meta key.
type SortOption struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}
