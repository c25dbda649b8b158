package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/questlab/geminiquest/pkg/core"
	"github.com/questlab/geminiquest/pkg/core/quest"
)

// VideoHandler handles POST /v1/quests/{id}/video. An optional body tweaks
// the seeded video config before generation starts.
type VideoHandler struct {
	Pipeline *quest.Pipeline
	Store    *quest.Store
}

func (h VideoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Prompt        *string `json:"prompt"`
		AspectRatio   *string `json:"aspect_ratio"`
		UseInputImage *bool   `json:"use_input_image"`
	}
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &body) {
			return
		}
	}

	if body.Prompt != nil || body.AspectRatio != nil || body.UseInputImage != nil {
		sess, ok := h.Store.Get(id)
		if !ok {
			writeError(w, r, core.NewNotFoundError("session not found"))
			return
		}
		cfg := quest.VideoConfig{}
		if sess.VideoConfig != nil {
			cfg = *sess.VideoConfig
		}
		if body.Prompt != nil {
			cfg.Prompt = *body.Prompt
		}
		if body.AspectRatio != nil {
			cfg.AspectRatio = *body.AspectRatio
		}
		if body.UseInputImage != nil {
			cfg.UseInputImage = *body.UseInputImage
		}
		if err := h.Pipeline.UpdateVideoConfig(id, cfg); err != nil {
			writeError(w, r, err)
			return
		}
	}

	if err := h.Pipeline.TriggerVideo(id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "generating"})
}

// ViralHandler handles POST /v1/quests/{id}/viral.
type ViralHandler struct {
	Pipeline *quest.Pipeline
}

func (h ViralHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.Pipeline.ExportViralClip(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "exporting"})
}

// QuizHandler handles POST /v1/quests/{id}/quiz.
type QuizHandler struct {
	Pipeline *quest.Pipeline
}

func (h QuizHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Score *int `json:"score"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Score == nil {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("score is required", "score"))
		return
	}
	xp, awarded, err := h.Pipeline.CompleteQuiz(chi.URLParam(r, "id"), *body.Score)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"xp": xp, "awarded": awarded})
}

// ChatHandler handles POST /v1/quests/{id}/chat.
type ChatHandler struct {
	Pipeline *quest.Pipeline
}

func (h ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	reply, err := h.Pipeline.Chat(r.Context(), chi.URLParam(r, "id"), body.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// StyleHandler handles POST /v1/quests/{id}/style. Unlike enrichment, edit
// failures surface to the caller.
type StyleHandler struct {
	Pipeline *quest.Pipeline
}

func (h StyleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Instruction string `json:"instruction"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Instruction) == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("instruction is required", "instruction"))
		return
	}
	img, err := h.Pipeline.EditImage(r.Context(), chi.URLParam(r, "id"), body.Instruction)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"image_b64": base64.StdEncoding.EncodeToString(img.Data),
		"mime":      img.MIME,
	})
}

// ProfileHandler handles GET /v1/profile.
type ProfileHandler struct {
	Pipeline *quest.Pipeline
}

func (h ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Pipeline.GetProfile())
}
