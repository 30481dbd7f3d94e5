package handler

import (
	"database/sql"
	"net/http"

	"github.com/dukerupert/emerald/internal/database"
)

// Health reports liveness, whether the database answers, and the applied
// schema version.
func Health(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		version, err := database.SchemaVersion(db)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "schema": version})
	}
}
