package expr

// aggregate reduces a NumberList to a Number.
type aggregate func(xs []float64) (float64, error)

// functions is the fixed call registry. Every entry takes exactly one NumberList.
var functions = map[string]aggregate{
	"sum": func(xs []float64) (float64, error) {
		var total float64
		for _, x := range xs {
			total += x
		}
		return total, nil
	},
	"avg": func(xs []float64) (float64, error) {
		if len(xs) == 0 {
			return 0, &EvalError{Kind: EmptyAggregate, Function: "avg"}
		}
		var total float64
		for _, x := range xs {
			total += x
		}
		return total / float64(len(xs)), nil
	},
	"count": func(xs []float64) (float64, error) {
		return float64(len(xs)), nil
	},
}

// IsFunction reports whether name is a registered aggregate.
func IsFunction(name string) bool {
	_, ok := functions[name]
	return ok
}
