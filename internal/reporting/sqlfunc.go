package reporting

import (
	"database/sql/driver"
	"fmt"
	"math"

	"modernc.org/sqlite"
)

func init() {
	// SQLite has no square root in builds without the math extension.
	if err := sqlite.RegisterDeterministicScalarFunction("safe_sqrt", 1, safeSqrt); err != nil {
		panic(fmt.Sprintf("registering safe_sqrt: %v", err))
	}
}

// safeSqrt returns the square root of its argument, clamping negative input
// to zero. NULL yields NULL.
func safeSqrt(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	var v float64
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case float64:
		v = x
	case int64:
		v = float64(x)
	default:
		return nil, fmt.Errorf("safe_sqrt: unsupported argument type %T", x)
	}
	if v <= 0 || math.IsNaN(v) {
		return 0.0, nil
	}
	return math.Sqrt(v), nil
}
