package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"image-hunter/internal/logging"
)

// GetMedia returns the index entry for {id}.
func (h *Handlers) GetMedia(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, "invalid media id", http.StatusBadRequest)
		return
	}

	m, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSONError(w, "media not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("GetMedia %d: %v", id, err)
		writeJSONError(w, "failed to read media index", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// GetStats returns the cached index statistics.
func (h *Handlers) GetStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.store.GetStats())
}

// TriggerReindex schedules an index run and returns immediately.
func (h *Handlers) TriggerReindex(w http.ResponseWriter, _ *http.Request) {
	h.indexer.TriggerIndex()
	writeJSONStatus(w, http.StatusAccepted, "reindex scheduled")
}
