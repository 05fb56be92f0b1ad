package workflow

// HoursPerDay converts requested hours into balance days.
const HoursPerDay = 8.0

// Policy is the kind-specific behaviour of a request type.
type Policy struct {
	// BalanceCategory names the quota charged on final approval; empty
	// means the request type does not consume a balance.
	BalanceCategory string
}

func (p Policy) ConsumesBalance() bool {
	return p.BalanceCategory != ""
}

// Policies is keyed by models.Request.Type().
type Policies map[string]Policy

func DefaultPolicies() Policies {
	return Policies{
		"leave:annual": {BalanceCategory: "annual"},
		"leave:sick":   {},
		"leave:unpaid": {},
		"overtime":     {},
	}
}

func Days(hours float64) float64 {
	return hours / HoursPerDay
}
