package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/questlab/geminiquest/pkg/core"
	"github.com/questlab/geminiquest/pkg/core/quest"
)

var errVideoStillRunning = errors.New("video operation still running")

// GenerateVideo renders a short clip and fetches the result bytes. The
// operation is polled at a fixed interval with a bounded attempt budget;
// hitting the budget fails the generation.
func (c *Client) GenerateVideo(ctx context.Context, req quest.VideoRequest) (*quest.Video, error) {
	if err := c.CheckCredential(); err != nil {
		return nil, err
	}
	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     "720p",
	}
	if req.AspectRatio != "" {
		cfg.AspectRatio = req.AspectRatio
	}

	var image *genai.Image
	if req.ImageB64 != "" {
		raw, err := base64.StdEncoding.DecodeString(req.ImageB64)
		if err != nil {
			return nil, core.NewInvalidRequestErrorWithParam("image_b64 is not valid base64", "image_b64")
		}
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		image = &genai.Image{ImageBytes: raw, MIMEType: mime}
	}

	op, err := c.ai.Models.GenerateVideos(ctx, c.cfg.VideoModel, req.Prompt, image, cfg)
	if err != nil {
		return nil, core.NewUpstreamError("generate videos", err)
	}

	err = retry.Do(
		func() error {
			if op.Done {
				return nil
			}
			op, err = c.ai.Operations.GetVideosOperation(ctx, op, nil)
			if err != nil {
				return retry.Unrecoverable(core.NewUpstreamError("poll video operation", err))
			}
			if !op.Done {
				return errVideoStillRunning
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.cfg.VideoPollMaxAttempts),
		retry.Delay(c.cfg.VideoPollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if errors.Is(err, errVideoStillRunning) {
			return nil, core.NewUpstreamError("generate videos",
				fmt.Errorf("operation did not finish within %d polls", c.cfg.VideoPollMaxAttempts))
		}
		return nil, err
	}

	// Give the CDN a moment before fetching.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.cfg.VideoSettleDelay):
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return nil, core.NewUpstreamError("generate videos", errors.New("operation finished without a video"))
	}
	video := op.Response.GeneratedVideos[0].Video
	if len(video.VideoBytes) > 0 {
		return &quest.Video{Data: video.VideoBytes, MIME: videoMIME(video.MIMEType)}, nil
	}
	if video.URI == "" {
		return nil, core.NewUpstreamError("generate videos", errors.New("operation finished without a video uri"))
	}
	return c.fetchVideo(ctx, video.URI, video.MIMEType)
}

// fetchVideo downloads the generated asset. The file endpoint expects the
// API key as a query parameter.
func (c *Client) fetchVideo(ctx context.Context, uri, mime string) (*quest.Video, error) {
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri+sep+"key="+c.cfg.APIKey, nil)
	if err != nil {
		return nil, core.NewUpstreamError("fetch video", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, core.NewUpstreamError("fetch video", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, core.NewUpstreamError("fetch video", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewUpstreamError("fetch video", err)
	}
	c.logger.Debug("video fetched", zap.Int("bytes", len(data)))
	return &quest.Video{Data: data, MIME: videoMIME(mime)}, nil
}

func videoMIME(mime string) string {
	if strings.TrimSpace(mime) == "" {
		return "video/mp4"
	}
	return mime
}
