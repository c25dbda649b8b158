package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"google.golang.org/genai"

	"github.com/questlab/geminiquest/pkg/core"
	"github.com/questlab/geminiquest/pkg/core/quest"
)

const analyzeSystemInstruction = "You are an expert science tutor. Analyze the provided inputs (text, images, sketches, audio). " +
	"If a sketch or diagram is provided (e.g. physics force diagram, biology cell structure), interpret the handwriting and drawings " +
	"to solve the problem or explain the concept step-by-step. Identify the scientific phenomenon. Generate a structured response. " +
	"If a hypothesis is provided, critique it constructively. Ensure the 'videoPrompt' is purely educational, scientific, safe for " +
	"all audiences, and describes a clear visual scene."

// analyzeSchema constrains the model to the structured quest result.
func analyzeSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":            {Type: genai.TypeString, Description: "A catchy title for this science quest"},
			"explanation":      {Type: genai.TypeString, Description: "A comprehensive, easy-to-understand explanation. If the user provided a hypothesis, analyze it here."},
			"videoPrompt":      {Type: genai.TypeString, Description: "A detailed visual description to generate a short educational video about this concept. Safe, scientific, visually clear."},
			"reasoningSummary": {Type: genai.TypeString, Description: "A summary of the step-by-step scientific reasoning used to reach this conclusion."},
			"visualTitle":      {Type: genai.TypeString, Description: "Title for a data chart."},
			"visualType":       {Type: genai.TypeString, Enum: []string{"bar", "pie", "line"}},
			"visualData": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"label": {Type: genai.TypeString},
						"value": {Type: genai.TypeNumber},
					},
				},
			},
			"nextQuestSuggestions": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"quiz": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"question":     {Type: genai.TypeString},
						"options":      {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
						"correctIndex": {Type: genai.TypeInteger},
						"explanation":  {Type: genai.TypeString},
					},
				},
			},
			"citations":       {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "List of scientific papers or credible sources."},
			"confidenceScore": {Type: genai.TypeNumber, Description: "Scientific confidence score between 0 and 100."},
		},
		Required: []string{"title", "explanation", "videoPrompt", "quiz", "nextQuestSuggestions", "reasoningSummary", "visualData", "citations", "confidenceScore"},
	}
}

// Analyze runs the primary structured call over the frozen quest inputs.
func (c *Client) Analyze(ctx context.Context, in quest.AnalyzeInput) (*quest.AnalysisResult, error) {
	if err := c.CheckCredential(); err != nil {
		return nil, err
	}
	parts := make([]*genai.Part, 0, 4)
	if in.Text != "" {
		parts = append(parts, &genai.Part{Text: "Observation: " + in.Text})
	}
	if in.Hypothesis != "" {
		parts = append(parts, &genai.Part{Text: "User Hypothesis/Notes: " + in.Hypothesis})
	}
	if in.ImageB64 != "" {
		blob, err := blobFromB64(in.ImageB64, in.ImageMIME, "image/jpeg")
		if err != nil {
			return nil, core.NewInvalidRequestErrorWithParam("image_b64 is not valid base64", "image_b64")
		}
		parts = append(parts, &genai.Part{InlineData: blob})
	}
	if in.AudioB64 != "" {
		blob, err := blobFromB64(in.AudioB64, in.AudioMIME, "audio/webm")
		if err != nil {
			return nil, core.NewInvalidRequestErrorWithParam("audio_b64 is not valid base64", "audio_b64")
		}
		parts = append(parts, &genai.Part{InlineData: blob})
	}

	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	resp, err := c.ai.Models.GenerateContent(callCtx, c.cfg.AnalyzeModel,
		[]*genai.Content{{Role: genai.RoleUser, Parts: parts}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: analyzeSystemInstruction}}},
			ResponseMIMEType:  "application/json",
			ResponseSchema:    analyzeSchema(),
		})
	if err != nil {
		return nil, core.NewUpstreamError("analyze", err)
	}

	var result quest.AnalysisResult
	raw := stripFences(resp.Text())
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, core.NewParseError("analysis response is not valid structured json", err)
	}
	if result.Title == "" && result.Explanation == "" {
		return nil, core.NewParseError("analysis response is empty", nil)
	}
	return &result, nil
}

// stripFences removes a markdown code fence the model sometimes wraps
// around its JSON despite the response mime type.
func stripFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return "{}"
	}
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

func blobFromB64(data, mime, fallbackMIME string) (*genai.Blob, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(mime) == "" {
		mime = fallbackMIME
	}
	return &genai.Blob{MIMEType: mime, Data: raw}, nil
}
