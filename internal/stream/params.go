package stream

import (
	"net/http"
	"time"

	"github.com/star/orrery/internal/httputil"
)

// params are the per-connection query parameters shared by both transports.
type params struct {
	step    time.Duration
	horizon int // accepted as a client hint; the stream runs until disconnect
	trail   int
}

// parseParams validates step (1-60 s), horizon (10-3600 s) and trail (0-120
// frames), writing a 400 on bad input.
func parseParams(w http.ResponseWriter, r *http.Request) (params, bool) {
	step, err := httputil.QueryInt(r, "step", 5, 1, 60)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return params{}, false
	}
	horizon, err := httputil.QueryInt(r, "horizon", 600, 10, 3600)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return params{}, false
	}
	trail, err := httputil.QueryInt(r, "trail", 20, 0, 120)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return params{}, false
	}
	return params{step: time.Duration(step) * time.Second, horizon: horizon, trail: trail}, true
}
