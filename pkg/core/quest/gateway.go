package quest

import (
	"context"
)

// AnalyzeInput is the multimodal payload handed to the primary analyze call.
type AnalyzeInput struct {
	Text       string
	ImageB64   string
	ImageMIME  string
	AudioB64   string
	AudioMIME  string
	Hypothesis string
}

// VideoRequest parameterizes on-demand video generation.
type VideoRequest struct {
	Prompt      string
	AspectRatio string
	// ImageB64/ImageMIME seed generation from the quest's input image
	// when the session's VideoConfig asks for it.
	ImageB64  string
	ImageMIME string
}

// Audio is generated speech plus its container type.
type Audio struct {
	Data []byte
	MIME string
}

// Image is generated or edited image bytes plus type.
type Image struct {
	Data []byte
	MIME string
}

// Video is fetched generated video bytes plus type.
type Video struct {
	Data []byte
	MIME string
}

// Gateway is the remote model backend the pipeline calls. One method per
// request/response operation; the live duplex surface is dialed separately.
type Gateway interface {
	// Analyze runs the primary structured analysis. Its failure leaves the
	// submission unresolved; its success gates all enrichment stages.
	Analyze(ctx context.Context, in AnalyzeInput) (*AnalysisResult, error)

	// Narrate synthesizes speech for the explanation text.
	Narrate(ctx context.Context, text string) (*Audio, error)

	// WebSearch answers a topic query with web grounding sources.
	WebSearch(ctx context.Context, topic string) (*GroundedAnswer, error)

	// MapQuery answers a topic query grounded to the given coordinates.
	MapQuery(ctx context.Context, topic string, loc LatLng) (*GroundedAnswer, error)

	// GenerateVideo produces a short clip. Long-running; implementations
	// poll until done or a bounded retry budget runs out.
	GenerateVideo(ctx context.Context, req VideoRequest) (*Video, error)

	// EditImage applies a style instruction to the input image.
	EditImage(ctx context.Context, imageB64, mime, instruction string) (*Image, error)

	// DetectEmotion classifies a monitoring frame.
	DetectEmotion(ctx context.Context, imageB64, mime string) (*Emotion, error)

	// Chat continues the per-quest tutoring conversation.
	Chat(ctx context.Context, history []ChatTurn, message string) (string, error)
}

// AssetStore keeps generated media bytes addressable by URL until they
// expire. Narration and video enrichment publish through it.
type AssetStore interface {
	Put(data []byte, mime string) (url string)
}
