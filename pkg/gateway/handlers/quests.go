// Package handlers contains the HTTP and websocket handlers for the quest
// API. Handlers are plain structs with their dependencies as fields; the
// server wires them onto the router.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/questlab/geminiquest/pkg/core"
	"github.com/questlab/geminiquest/pkg/core/quest"
	"github.com/questlab/geminiquest/pkg/gateway/lifecycle"
	"github.com/questlab/geminiquest/pkg/gateway/mw"
)

// SubmitQuestHandler handles POST /v1/quests. The session id is returned
// before any model call happens; clients poll the record for enrichment.
type SubmitQuestHandler struct {
	Pipeline  *quest.Pipeline
	Lifecycle *lifecycle.Lifecycle
}

func (h SubmitQuestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Lifecycle.IsDraining() {
		reqID, _ := mw.RequestIDFrom(r.Context())
		mw.WriteJSONError(w, 529, &core.Error{
			Type: core.ErrOverloaded, Message: "gateway is draining", Code: "draining", RequestID: reqID,
		})
		return
	}
	var in quest.Inputs
	if !decodeJSON(w, r, &in) {
		return
	}
	id, err := h.Pipeline.Submit(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": id})
}

// ListQuestsHandler handles GET /v1/quests, newest first.
type ListQuestsHandler struct {
	Store *quest.Store
}

func (h ListQuestsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessions := h.Store.List()
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// GetQuestHandler handles GET /v1/quests/{id}.
type GetQuestHandler struct {
	Store *quest.Store
}

func (h GetQuestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := h.Store.Get(id)
	if !ok {
		writeError(w, r, core.NewNotFoundError("session not found"))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
