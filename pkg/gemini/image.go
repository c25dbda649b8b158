package gemini

import (
	"context"

	"google.golang.org/genai"

	"github.com/questlab/geminiquest/pkg/core"
	"github.com/questlab/geminiquest/pkg/core/quest"
)

// EditImage applies a style instruction to the input image with the image
// model and returns the first generated image part.
func (c *Client) EditImage(ctx context.Context, imageB64, mime, instruction string) (*quest.Image, error) {
	if err := c.CheckCredential(); err != nil {
		return nil, err
	}
	blob, err := blobFromB64(imageB64, mime, "image/jpeg")
	if err != nil {
		return nil, core.NewInvalidRequestErrorWithParam("image_b64 is not valid base64", "image_b64")
	}

	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	resp, err := c.ai.Models.GenerateContent(callCtx, c.cfg.ImageModel,
		[]*genai.Content{{Parts: []*genai.Part{
			{InlineData: blob},
			{Text: instruction},
		}}},
		nil)
	if err != nil {
		return nil, core.NewUpstreamError("edit image", err)
	}

	out := firstInlineData(resp)
	if out == nil || len(out.Data) == 0 {
		return nil, core.NewParseError("no image in edit response", nil)
	}
	outMIME := out.MIMEType
	if outMIME == "" {
		outMIME = "image/jpeg"
	}
	return &quest.Image{Data: out.Data, MIME: outMIME}, nil
}
