package fx

// Method enumerates supported FX conversion methods.
type Method string

const (
	// MethodAverage uses the average rate of the month containing the conversion date.
	MethodAverage Method = "AVERAGE"
	// MethodSpot uses the rate effective on the conversion date.
	MethodSpot Method = "SPOT"
)

// Valid reports whether the method is supported.
func (m Method) Valid() bool {
	return m == MethodAverage || m == MethodSpot
}

// Label is the wording used on generated move lines.
func (m Method) Label() string {
	if m == MethodAverage {
		return "monthly rate"
	}
	return "spot rate"
}

// Policy describes which method applies to flow and cumulative accounts.
type Policy struct {
	FlowMethod       Method
	CumulativeMethod Method
}

// DefaultPolicy converts P&L accounts at the period average and balance sheet accounts at spot.
func DefaultPolicy() Policy {
	return Policy{
		FlowMethod:       MethodAverage,
		CumulativeMethod: MethodSpot,
	}
}

// MethodFor picks the method for an account; includeInitialBalance marks balance sheet accounts.
func (p Policy) MethodFor(includeInitialBalance bool) Method {
	if includeInitialBalance {
		if p.CumulativeMethod == "" {
			return MethodSpot
		}
		return p.CumulativeMethod
	}
	if p.FlowMethod == "" {
		return MethodAverage
	}
	return p.FlowMethod
}
