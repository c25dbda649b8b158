package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/questlab/geminiquest/pkg/core"
	"github.com/questlab/geminiquest/pkg/core/live"
)

const liveSystemInstruction = "You are a friendly, encouraging science tutor in a live voice conversation. " +
	"The user may show you things through their camera. Keep answers short and conversational, and ask guiding questions."

// Dial opens the duplex live connection with audio responses enabled.
// Together with CheckCredential this satisfies live.Dialer.
func (c *Client) Dial(ctx context.Context) (live.Upstream, error) {
	if err := c.CheckCredential(); err != nil {
		return nil, err
	}
	session, err := c.ai.Live.Connect(ctx, c.cfg.LiveModel, &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction:  &genai.Content{Parts: []*genai.Part{{Text: liveSystemInstruction}}},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: c.cfg.Voice},
			},
		},
	})
	if err != nil {
		return nil, core.NewUpstreamError("live connect", err)
	}
	return &liveUpstream{session: session}, nil
}

// liveUpstream adapts a genai live session to the core live.Upstream
// contract.
type liveUpstream struct {
	session *genai.Session
}

func (u *liveUpstream) SendAudio(pcm []byte, sampleRateHz int) error {
	err := u.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			MIMEType: fmt.Sprintf("audio/pcm;rate=%d", sampleRateHz),
			Data:     pcm,
		},
	})
	if err != nil {
		return core.NewUpstreamError("send audio", err)
	}
	return nil
}

func (u *liveUpstream) SendVideo(data []byte, mime string) error {
	err := u.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{MIMEType: mime, Data: data},
	})
	if err != nil {
		return core.NewUpstreamError("send video", err)
	}
	return nil
}

// Receive maps the next server message: interruption flag, inline audio
// from the model turn, turn completion.
func (u *liveUpstream) Receive() (*live.ServerMessage, error) {
	msg, err := u.session.Receive()
	if err != nil {
		return nil, core.NewUpstreamError("live receive", err)
	}
	out := &live.ServerMessage{}
	sc := msg.ServerContent
	if sc == nil {
		return out, nil
	}
	out.Interrupted = sc.Interrupted
	out.TurnComplete = sc.TurnComplete
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				out.Audio = append(out.Audio, part.InlineData.Data...)
			}
		}
	}
	return out, nil
}

func (u *liveUpstream) Close() error {
	return u.session.Close()
}
