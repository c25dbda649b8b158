package handlers

import (
	"net/http"
	"strings"

	"github.com/questlab/geminiquest/pkg/core"
	"github.com/questlab/geminiquest/pkg/core/quest"
)

// MonitorHandler handles POST /v1/monitor: one webcam frame in, a confusion
// reading out. Detection failures are absorbed by the pipeline, so this
// endpoint only fails on bad input.
type MonitorHandler struct {
	Pipeline *quest.Pipeline
}

func (h MonitorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ImageB64 string `json:"image_b64"`
		MIME     string `json:"mime"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.ImageB64) == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("image_b64 is required", "image_b64"))
		return
	}
	if body.MIME == "" {
		body.MIME = "image/jpeg"
	}
	emo := h.Pipeline.DetectEmotion(r.Context(), body.ImageB64, body.MIME)
	writeJSON(w, http.StatusOK, emo)
}
