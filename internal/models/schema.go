package models

import "strings"

type ConstraintKind string

const (
	ForeignKey ConstraintKind = "foreign_key"
	Other      ConstraintKind = "other"
)

// ConstraintDescriptor is a snapshot of one constraint as reported by the
// database. ReferencedTable is empty unless Kind is ForeignKey.
type ConstraintDescriptor struct {
	Name            string         `json:"name"`
	Kind            ConstraintKind `json:"kind"`
	ReferencedTable string         `json:"referenced_table,omitempty"`
	Columns         []string       `json:"columns,omitempty"`
}

// References reports whether the constraint is a foreign key pointing at table.
func (c ConstraintDescriptor) References(table string) bool {
	return c.Kind == ForeignKey && c.ReferencedTable != "" && strings.EqualFold(c.ReferencedTable, table)
}

type TableKind int

const (
	Plain TableKind = iota
	Sharded
	ShardRelated
)

func (k TableKind) String() string {
	switch k {
	case Sharded:
		return "sharded"
	case ShardRelated:
		return "shard_related"
	default:
		return "plain"
	}
}

// KindSet is a set of table kinds.
type KindSet map[TableKind]struct{}

func NewKindSet(kinds ...TableKind) KindSet {
	set := make(KindSet, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return set
}

func (s KindSet) Has(k TableKind) bool {
	_, ok := s[k]
	return ok
}

type TableDescriptor struct {
	Name        string                          `json:"name"`
	Kind        TableKind                       `json:"kind"`
	Constraints map[string]ConstraintDescriptor `json:"constraints,omitempty"`
}
