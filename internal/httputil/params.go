package httputil

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
)

// QueryInt returns the integer query parameter name, or def when it is
// absent. Values outside [min, max] are an error.
func QueryInt(r *http.Request, name string, def, min, max int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("invalid %s parameter, must be %d-%d", name, min, max)
	}
	return n, nil
}

// QueryFloat returns the float query parameter name, or def when it is
// absent. Non-finite values and values outside [min, max] are an error.
func QueryFloat(r *http.Request, name string, def, min, max float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < min || f > max {
		return 0, fmt.Errorf("invalid %s parameter, must be %g-%g", name, min, max)
	}
	return f, nil
}
