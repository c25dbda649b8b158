package gemini

import (
	"context"

	"google.golang.org/genai"

	"github.com/questlab/geminiquest/pkg/core"
	"github.com/questlab/geminiquest/pkg/core/quest"
)

const chatSystemInstruction = "You are a helpful science tutor. Use Socratic method to guide the user."

// Chat continues the tutoring conversation: the stored history plus the
// new user message, answered under the Socratic system instruction.
func (c *Client) Chat(ctx context.Context, history []quest.ChatTurn, message string) (string, error) {
	if err := c.CheckCredential(); err != nil {
		return "", err
	}
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		role := genai.RoleUser
		if turn.Role == quest.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Text}},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: message}},
	})

	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	resp, err := c.ai.Models.GenerateContent(callCtx, c.cfg.AnalyzeModel, contents,
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: chatSystemInstruction}}},
		})
	if err != nil {
		return "", core.NewUpstreamError("chat", err)
	}
	reply := resp.Text()
	if reply == "" {
		return "", core.NewParseError("empty chat response", nil)
	}
	return reply, nil
}
