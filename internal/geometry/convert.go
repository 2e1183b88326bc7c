package geometry

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Number converts a decoded JSON value to float64. Numeric strings are
// accepted.
func Number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, eris.Wrapf(err, "parse %q", n)
		}
		return f, nil
	default:
		return 0, eris.Errorf("unsupported type %T", v)
	}
}
