package materialize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/docc-labs/docc-api/internal/apperr"
)

type JoinKind string

const (
	JoinInner JoinKind = "INNER"
	JoinLeft  JoinKind = "LEFT"
	JoinRight JoinKind = "RIGHT"
	JoinFull  JoinKind = "FULL"
	JoinCross JoinKind = "CROSS"
	JoinSelf  JoinKind = "SELF"
)

type Materialization string

const (
	MakeTable Materialization = "table"
	MakeView  Materialization = "view"
)

// MatchPair is one equality condition of the join ON clause.
type MatchPair struct {
	Table1Column string `json:"table1_column"`
	Table2Column string `json:"table2_column"`
}

// JoinSpec describes a two-table join to materialize. Column maps rename
// source columns in the output.
type JoinSpec struct {
	Make          Materialization   `json:"make"`
	Kind          JoinKind          `json:"type"`
	NewTable      string            `json:"new_table"`
	Table1        string            `json:"table1"`
	Table1Columns map[string]string `json:"table1_col"`
	Table2        string            `json:"table2"`
	Table2Columns map[string]string `json:"table2_col"`
	MatchPairs    []MatchPair       `json:"match_pair,omitempty"`
}

// Validate checks the spec before any file is generated. SELF is a
// recognized kind the tool does not implement, so it is rejected here
// rather than guessed at.
func (s *JoinSpec) Validate() error {
	switch s.Kind {
	case JoinInner, JoinLeft, JoinRight, JoinFull, JoinCross:
	case JoinSelf:
		return apperr.New(apperr.Validation, "SELF join is not implemented")
	default:
		return apperr.New(apperr.Validation, "unsupported join type %q", string(s.Kind))
	}
	if s.Make != MakeTable && s.Make != MakeView {
		return apperr.New(apperr.Validation, "make must be \"table\" or \"view\", got %q", string(s.Make))
	}
	if s.NewTable == "" {
		return apperr.New(apperr.Validation, "new_table is required")
	}
	if s.Table1 == "" || s.Table2 == "" {
		return apperr.New(apperr.Validation, "table1 and table2 are required")
	}
	if len(s.Table1Columns) == 0 || len(s.Table2Columns) == 0 {
		return apperr.New(apperr.Validation, "column selections are required for both tables")
	}
	if s.Kind != JoinCross && len(s.MatchPairs) == 0 {
		return apperr.New(apperr.Validation, "match_pair is required for %s joins", string(s.Kind))
	}
	return nil
}

// BuildQuery renders the model file handed to the transformation tool. The
// output is deterministic: selected columns appear in sorted source-column
// order.
func (s *JoinSpec) BuildQuery() string {
	var b strings.Builder

	if s.Make == MakeTable {
		b.WriteString("{{ config(materialized='table') }}\n\n")
	}

	b.WriteString("SELECT\n\t")
	selects := append(
		selectClause(s.Table1, s.Table1Columns),
		selectClause(s.Table2, s.Table2Columns)...,
	)
	b.WriteString(strings.Join(selects, ",\n\t"))

	b.WriteString(fmt.Sprintf("\nFROM %s\n%s JOIN %s", s.Table1, s.Kind, s.Table2))

	if s.Kind != JoinCross {
		conditions := make([]string, len(s.MatchPairs))
		for i, pair := range s.MatchPairs {
			conditions[i] = fmt.Sprintf("%s.%s = %s.%s", s.Table1, pair.Table1Column, s.Table2, pair.Table2Column)
		}
		b.WriteString("\n\tON " + strings.Join(conditions, "\n\tAND "))
	}
	return b.String()
}

func selectClause(table string, columns map[string]string) []string {
	names := make([]string, 0, len(columns))
	for col := range columns {
		names = append(names, col)
	}
	sort.Strings(names)

	clauses := make([]string, len(names))
	for i, col := range names {
		clauses[i] = fmt.Sprintf("%s.%s AS %s", table, col, columns[col])
	}
	return clauses
}
