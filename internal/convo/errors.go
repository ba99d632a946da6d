package convo

import "fmt"

// errBudgetUnsatisfiable signals that the context cannot fit the budget even
// after truncation and summarization. The caller decides whether to proceed
// with a degraded context or reject the prompt.
type errBudgetUnsatisfiable struct {
	need   int
	budget int
}

func (e errBudgetUnsatisfiable) Error() string {
	return fmt.Sprintf("context budget unsatisfiable: need %d tokens, budget %d", e.need, e.budget)
}

// ErrBudgetUnsatisfiable constructs a budget error for the given need.
func ErrBudgetUnsatisfiable(need, budget int) error {
	return errBudgetUnsatisfiable{need: need, budget: budget}
}

// IsBudgetUnsatisfiable reports whether err indicates an unsatisfiable
// token budget.
func IsBudgetUnsatisfiable(err error) bool {
	_, ok := err.(errBudgetUnsatisfiable)
	return ok
}
