package gemini

import (
	"context"
	"encoding/json"

	"google.golang.org/genai"

	"github.com/questlab/geminiquest/pkg/core"
	"github.com/questlab/geminiquest/pkg/core/quest"
)

// Narrate synthesizes speech for the explanation text using the prebuilt
// voice. The caller is responsible for truncating long text.
func (c *Client) Narrate(ctx context.Context, text string) (*quest.Audio, error) {
	if err := c.CheckCredential(); err != nil {
		return nil, err
	}
	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	resp, err := c.ai.Models.GenerateContent(callCtx, c.cfg.TTSModel,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: c.cfg.Voice},
				},
			},
		})
	if err != nil {
		return nil, core.NewUpstreamError("narrate", err)
	}
	blob := firstInlineData(resp)
	if blob == nil || len(blob.Data) == 0 {
		return nil, core.NewParseError("no audio in narration response", nil)
	}
	mime := blob.MIMEType
	if mime == "" {
		mime = "audio/mp3"
	}
	return &quest.Audio{Data: blob.Data, MIME: mime}, nil
}

// WebSearch asks for the latest findings on a topic with the search tool
// enabled and collects the grounding sources.
func (c *Client) WebSearch(ctx context.Context, topic string) (*quest.GroundedAnswer, error) {
	if err := c.CheckCredential(); err != nil {
		return nil, err
	}
	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	resp, err := c.ai.Models.GenerateContent(callCtx, c.cfg.AnalyzeModel,
		genai.Text("Find the latest scientific news and research papers regarding: "+topic+". Summarize key findings."),
		&genai.GenerateContentConfig{
			Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		})
	if err != nil {
		return nil, core.NewUpstreamError("web search", err)
	}
	text := resp.Text()
	if text == "" {
		text = "No recent updates found."
	}
	return &quest.GroundedAnswer{Text: text, Sources: groundingSources(resp)}, nil
}

// MapQuery asks for points of interest near the given coordinates with the
// maps tool enabled.
func (c *Client) MapQuery(ctx context.Context, topic string, loc quest.LatLng) (*quest.GroundedAnswer, error) {
	if err := c.CheckCredential(); err != nil {
		return nil, err
	}
	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	resp, err := c.ai.Models.GenerateContent(callCtx, c.cfg.AnalyzeModel,
		genai.Text("Find scientific points of interest, ecosystems, or relevant locations near me related to: "+topic),
		&genai.GenerateContentConfig{
			Tools: []*genai.Tool{{GoogleMaps: &genai.GoogleMaps{}}},
			ToolConfig: &genai.ToolConfig{
				RetrievalConfig: &genai.RetrievalConfig{
					LatLng: &genai.LatLng{Latitude: genai.Ptr(loc.Latitude), Longitude: genai.Ptr(loc.Longitude)},
				},
			},
		})
	if err != nil {
		return nil, core.NewUpstreamError("map query", err)
	}
	text := resp.Text()
	if text == "" {
		text = "No local insights found."
	}
	return &quest.GroundedAnswer{Text: text, Sources: groundingSources(resp)}, nil
}

// DetectEmotion classifies one webcam frame. A malformed model response is
// reported as a calm reading, not an error.
func (c *Client) DetectEmotion(ctx context.Context, imageB64, mime string) (*quest.Emotion, error) {
	if err := c.CheckCredential(); err != nil {
		return nil, err
	}
	blob, err := blobFromB64(imageB64, mime, "image/jpeg")
	if err != nil {
		return nil, core.NewInvalidRequestErrorWithParam("image_b64 is not valid base64", "image_b64")
	}

	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	resp, err := c.ai.Models.GenerateContent(callCtx, c.cfg.AnalyzeModel,
		[]*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{
			{InlineData: blob},
			{Text: "Analyze the user's facial expression in this webcam frame. Are they looking confused, frowning, or frustrated? Return JSON."},
		}}},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"isConfused": {Type: genai.TypeBoolean},
					"advice":     {Type: genai.TypeString},
				},
				Required: []string{"isConfused", "advice"},
			},
		})
	if err != nil {
		return nil, core.NewUpstreamError("detect emotion", err)
	}

	var out struct {
		IsConfused bool   `json:"isConfused"`
		Advice     string `json:"advice"`
	}
	if err := json.Unmarshal([]byte(stripFences(resp.Text())), &out); err != nil {
		return &quest.Emotion{}, nil
	}
	return &quest.Emotion{IsConfused: out.IsConfused, Advice: out.Advice}, nil
}

func firstInlineData(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil {
				return part.InlineData
			}
		}
	}
	return nil
}

func groundingSources(resp *genai.GenerateContentResponse) []quest.Source {
	sources := make([]quest.Source, 0)
	if resp == nil || len(resp.Candidates) == 0 {
		return sources
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return sources
	}
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		sources = append(sources, quest.Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
	}
	return sources
}
