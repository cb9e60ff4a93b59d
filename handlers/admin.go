package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"cineview/services/cache"
)

type AdminHandler struct {
	caches []*cache.Cache
}

func NewAdminHandler(caches ...*cache.Cache) *AdminHandler {
	return &AdminHandler{caches: caches}
}

// ClearCache serves POST /api/admin/cache/clear. It empties every registered
// cache tier; subsequent reads repopulate from the providers.
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	for _, c := range h.caches {
		if err := c.Clear(); err != nil {
			log.Printf("[admin] cache clear: %v", err)
			writeError(w, r, http.StatusInternalServerError, "failed to clear cache")
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
