package metrics

import (
	"encoding/json"
	"net/http"
)

// Handler serves the current snapshot as JSON.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := json.NewEncoder(w).Encode(c.Snapshot()); err != nil {
			http.Error(w, "failed to encode snapshot", http.StatusInternalServerError)
		}
	}
}
