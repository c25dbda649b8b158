package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/questlab/geminiquest/pkg/core"
	"github.com/questlab/geminiquest/pkg/gateway/assets"
)

// AssetHandler serves GET /v1/assets/{id}: generated narration audio,
// edited images and rendered videos from the in-memory cache.
type AssetHandler struct {
	Assets *assets.Store
}

func (h AssetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	asset, ok := h.Assets.Get(id)
	if !ok {
		writeError(w, r, core.NewNotFoundError("asset not found or expired"))
		return
	}
	w.Header().Set("Content-Type", asset.MIME)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(asset.Data)
}
