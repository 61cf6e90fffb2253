package main

import (
	"encoding/json"
	"net/http"

	"github.com/deusflow/hunews/internal/metrics"
	"github.com/deusflow/hunews/internal/ratelimit"
)

func healthHandler(m *metrics.Metrics, budget *ratelimit.Budget) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := m.GetStats()

		status := "ok"
		code := http.StatusOK
		if healthy, _ := stats["is_healthy"].(bool); !healthy {
			status = "error"
			code = http.StatusServiceUnavailable
		}

		response := map[string]interface{}{
			"status":     status,
			"last_run":   stats["last_run_time"],
			"last_error": stats["last_error"],
		}
		if budget != nil {
			response["model_calls"] = budget.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(response)
	}
}
