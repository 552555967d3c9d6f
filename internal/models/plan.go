package models

// PlanEntry is a single drop statement scheduled for a constraint.
type PlanEntry struct {
	Table          string `json:"table"`
	ConstraintName string `json:"constraint_name"`
	DropStatement  string `json:"drop_statement"`
}

type ReconciliationPlan []PlanEntry

func (p ReconciliationPlan) Statements() []string {
	stmts := make([]string, 0, len(p))
	for _, e := range p {
		stmts = append(stmts, e.DropStatement)
	}
	return stmts
}
