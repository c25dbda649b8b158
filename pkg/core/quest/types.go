package quest

import (
	"time"
)

// VisualType enumerates the chart kinds the analysis model may choose.
type VisualType string

const (
	VisualBar  VisualType = "bar"
	VisualPie  VisualType = "pie"
	VisualLine VisualType = "line"
)

// VisualDatum is one labeled point of the suggested visualization.
type VisualDatum struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// QuizQuestion is one multiple-choice question from the analysis result.
type QuizQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Explanation  string   `json:"explanation"`
}

// Source is a grounding citation attached to a web or map answer.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// GroundedAnswer is model text plus the grounding sources it was built from.
type GroundedAnswer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// AnalysisResult is the structured outcome of the primary analyze call.
// SearchData and MapData start empty and are patched in by the enrichment
// stages after the result is already visible.
type AnalysisResult struct {
	Title                string         `json:"title"`
	Explanation          string         `json:"explanation"`
	VideoPrompt          string         `json:"videoPrompt"`
	ReasoningSummary     string         `json:"reasoningSummary"`
	VisualTitle          string         `json:"visualTitle"`
	VisualType           VisualType     `json:"visualType"`
	VisualData           []VisualDatum  `json:"visualData"`
	NextQuestSuggestions []string       `json:"nextQuestSuggestions"`
	Quiz                 []QuizQuestion `json:"quiz"`
	Citations            []string       `json:"citations"`
	ConfidenceScore      float64        `json:"confidenceScore"`

	SearchData *GroundedAnswer `json:"searchData,omitempty"`
	MapData    *GroundedAnswer `json:"mapData,omitempty"`
}

// LatLng is a client-reported geolocation. Absent when the client denied
// or could not provide one.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Inputs is the frozen multimodal capture a quest is built from. At least
// one of Text, ImageB64, AudioB64 must be present.
type Inputs struct {
	Text       string  `json:"text,omitempty"`
	ImageB64   string  `json:"image_b64,omitempty"`
	ImageMIME  string  `json:"image_mime,omitempty"`
	AudioB64   string  `json:"audio_b64,omitempty"`
	AudioMIME  string  `json:"audio_mime,omitempty"`
	Hypothesis string  `json:"hypothesis,omitempty"`
	Location   *LatLng `json:"location,omitempty"`
}

// Empty reports whether no capture modality is present.
func (in Inputs) Empty() bool {
	return in.Text == "" && in.ImageB64 == "" && in.AudioB64 == ""
}

// VideoConfig holds the editable parameters for on-demand video generation,
// seeded from the analysis result.
type VideoConfig struct {
	Prompt        string `json:"prompt"`
	AspectRatio   string `json:"aspect_ratio"`
	UseInputImage bool   `json:"use_input_image"`
}

// ChatRole is the speaker of one chat turn.
type ChatRole string

const (
	RoleUser  ChatRole = "user"
	RoleModel ChatRole = "model"
)

// ChatTurn is one exchange half in the per-quest tutoring chat.
type ChatTurn struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}

// Session is one quest record. Created synchronously on submission and
// enriched asynchronously afterwards; clients poll the record to observe
// the loading flags flipping off as stages land.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Inputs    Inputs    `json:"inputs"`

	Result      *AnalysisResult `json:"result,omitempty"`
	VideoConfig *VideoConfig    `json:"video_config,omitempty"`

	GeneratedAudioURL     string `json:"generated_audio_url,omitempty"`
	GeneratedVideoURL     string `json:"generated_video_url,omitempty"`
	GeneratedViralClipURL string `json:"generated_viral_clip_url,omitempty"`

	IsVideoLoading  bool `json:"is_video_loading"`
	IsViralLoading  bool `json:"is_viral_loading"`
	IsSearchLoading bool `json:"is_search_loading"`
	IsMapLoading    bool `json:"is_map_loading"`

	// AnalysisFailed marks a session whose primary analyze call failed.
	// The record stays unresolved forever; it is never retried or removed.
	AnalysisFailed bool   `json:"analysis_failed,omitempty"`
	AnalysisError  string `json:"analysis_error,omitempty"`

	UserScore   *int       `json:"user_score,omitempty"`
	ChatHistory []ChatTurn `json:"chat_history,omitempty"`
}

// Emotion is the outcome of a monitoring frame check.
type Emotion struct {
	IsConfused bool   `json:"is_confused"`
	Advice     string `json:"advice,omitempty"`
}

// Profile tracks learner progression. XP is awarded once per quest quiz.
type Profile struct {
	XP     int      `json:"xp"`
	Level  int      `json:"level"`
	Badges []string `json:"badges"`
	Streak int      `json:"streak"`
}

// XPPerQuizPoint converts a quiz score into experience points.
const XPPerQuizPoint = 50

// LevelForXP derives the level from accumulated XP, 500 XP per level.
func LevelForXP(xp int) int {
	return xp/500 + 1
}
