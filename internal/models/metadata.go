package models

// Column describes one column of an introspected table.
type Column struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default"`
}

type ForeignKey struct {
	Column        string `json:"column"`
	ForeignTable  string `json:"foreign_table"`
	ForeignColumn string `json:"foreign_column"`
}

// TableMetadata is the full descriptor returned by schema introspection.
type TableMetadata struct {
	Name            string       `json:"name"`
	Columns         []Column     `json:"columns"`
	PrimaryKeys     []string     `json:"primary_keys"`
	UniqueKeyGroups [][]string   `json:"unique_key_groups"`
	ForeignKeys     []ForeignKey `json:"foreign_keys"`
}

// UniqueIdentifiers is the reduced key view of a single table.
type UniqueIdentifiers struct {
	PrimaryKeyColumns  []string   `json:"primary_key_columns"`
	UniqueColumnGroups [][]string `json:"unique_column_groups"`
}

// Page is one page of raw rows from a source table. Row order is whatever
// the source returns; no ordering key is imposed.
type Page struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	Page         int      `json:"page"`
	PerPage      int      `json:"per_page"`
	TotalPages   int      `json:"total_pages"`
	TotalRecords int      `json:"total_records"`
}
