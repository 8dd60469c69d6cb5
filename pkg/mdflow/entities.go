package mdflow

import "time"

// ProgressStatus is the lifecycle state of a LearnProgressRecord or an
// outline item as observed by the client.
type ProgressStatus string

const (
	StatusLocked     ProgressStatus = "LOCKED"
	StatusNotStarted ProgressStatus = "NOT_STARTED"
	StatusInProgress ProgressStatus = "IN_PROGRESS"
	StatusCompleted  ProgressStatus = "COMPLETED"
	StatusReset      ProgressStatus = "RESET"
)

// OutlineType distinguishes the access tier of an OutlineItem.
type OutlineType string

const (
	OutlineNormal OutlineType = "normal"
	OutlineTrial  OutlineType = "trial"
	OutlineGuest  OutlineType = "guest"
)

// TTSConfig is a Shifu's or OutlineItem's optional text-to-speech override.
type TTSConfig struct {
	Enabled  bool
	Provider string
	Model    string
	VoiceID  string
	Speed    float64
	Pitch    float64
	Emotion  string
	Volume   float64
}

// Shifu is a course: an outline tree plus default LLM/TTS settings. Draft
// and published variants share this shape; callers select one with
// PreviewMode.
type Shifu struct {
	ShifuBID        string
	Title           string
	Description     string
	Avatar          string
	Price           float64
	Keywords        []string
	LLMSystemPrompt string
	LLM             string
	LLMTemperature  *float64
	TTS             TTSConfig
}

// OutlineItem is a node or leaf in a Shifu's outline tree.
type OutlineItem struct {
	OutlineItemBID  string
	ShifuBID        string
	Position        string // dotted path, e.g. "1.2.3"
	Title           string
	Type            OutlineType
	Hidden          bool
	LLMSystemPrompt string
	LLM             string
	LLMTemperature  *float64
	Mdflow          string // raw MarkdownFlow document, leaves only
}

// StructNodeType names the kind of node in a StructTree snapshot.
type StructNodeType string

const (
	StructShifu   StructNodeType = "shifu"
	StructOutline StructNodeType = "outline"
	StructBlock   StructNodeType = "block"
)

// StructNode is one node of an immutable StructTree (HistoryItem) snapshot.
// Authoring edits produce a new snapshot; a StructTree is never mutated
// during a run.
type StructNode struct {
	BID      string // outline/shifu business id
	ID       int64  // internal numeric id, lookups only
	Type     StructNodeType
	Title    string
	Hidden   bool
	Children []*StructNode
}

// IsLeaf reports whether n is a leaf outline: its first child (if any) has
// type block, or it has no children at all.
func (n *StructNode) IsLeaf() bool {
	if len(n.Children) == 0 {
		return true
	}
	return n.Children[0].Type == StructBlock
}

// StructTree is a per-variant (draft/published) snapshot of a Shifu's
// outline hierarchy.
type StructTree struct {
	ShifuBID string
	Root     *StructNode
}

// LearnProgressRecord is a learner's execution cursor for one outline item.
// A learner has at most one non-RESET record per (user, outline item); the
// active one is the most recently inserted (highest ID).
type LearnProgressRecord struct {
	ID                int64
	ProgressRecordBID string
	UserBID           string
	ShifuBID          string
	OutlineItemBID    string
	Status            ProgressStatus
	BlockPosition     int // next block index to execute
	Deleted           bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// GeneratedBlockType classifies a LearnGeneratedBlock row.
type GeneratedBlockType string

const (
	GeneratedContent     GeneratedBlockType = "content"
	GeneratedInteraction GeneratedBlockType = "interaction"
	GeneratedError       GeneratedBlockType = "error-message"
	GeneratedAsk         GeneratedBlockType = "ask"
	GeneratedAnswer      GeneratedBlockType = "answer"
)

// GeneratedBlockRole names who produced a LearnGeneratedBlock row.
type GeneratedBlockRole string

const (
	RoleTeacher GeneratedBlockRole = "teacher"
	RoleStudent GeneratedBlockRole = "student"
)

// LearnGeneratedBlock is the append-only log of what the Engine produced or
// the learner submitted, within one progress record. At most one active
// (Status=1, Deleted=false) row exists per (ProgressRecordBID, Position,
// Type=interaction) — the current pending question.
type LearnGeneratedBlock struct {
	ID                int64
	GeneratedBlockBID string
	ProgressRecordBID string
	UserBID           string
	ShifuBID          string
	OutlineItemBID    string
	Type              GeneratedBlockType
	Role              GeneratedBlockRole
	Position          int // zero-based block index in the leaf
	BlockContentConf  string
	GeneratedContent  string
	Status            int // 1 = active, 0 = obsolete
	Liked             int // -1, 0, 1
	Deleted           bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Active reports whether the row currently represents a live record.
func (b *LearnGeneratedBlock) Active() bool {
	return b.Status == 1 && !b.Deleted
}

// AudioStatus is the synthesis lifecycle of a LearnGeneratedAudio row.
type AudioStatus string

const (
	AudioPending    AudioStatus = "pending"
	AudioProcessing AudioStatus = "processing"
	AudioCompleted  AudioStatus = "completed"
	AudioFailed     AudioStatus = "failed"
)

// VoiceSettings captures the structured TTS voice parameters used to
// synthesize one LearnGeneratedAudio row.
type VoiceSettings struct {
	Speed   float64
	Pitch   float64
	Emotion string
	Volume  float64
}

// LearnGeneratedAudio is one finalized audio part. For a given
// GeneratedBlockBID, Position values are a contiguous 0..N-1 sequence of
// completed parts.
type LearnGeneratedAudio struct {
	ID                int64
	AudioBID          string
	GeneratedBlockBID string
	Position          int
	ProgressRecordBID string
	UserBID           string
	ShifuBID          string
	OSSURL            string
	OSSBucket         string
	OSSObjectKey      string
	DurationMS        int64
	FileSize          int64
	AudioFormat       string // "mp3"
	SampleRate        int
	VoiceID           string
	VoiceSettings     VoiceSettings
	Model             string
	TextLength        int
	SegmentCount      int
	Status            AudioStatus
	ErrorMessage      string
	Deleted           bool
}

// UsageType distinguishes LLM vs TTS metering rows.
type UsageType int

const (
	UsageLLM UsageType = 1101
	UsageTTS UsageType = 1102
)

// UsageLevel distinguishes request-level from segment-level metering rows.
type UsageLevel int

const (
	LevelRequest UsageLevel = 0
	LevelSegment UsageLevel = 1
)

// UsageScene names the context a metering row was recorded in.
type UsageScene int

const (
	SceneDebug      UsageScene = 1201
	ScenePreview    UsageScene = 1202
	SceneProduction UsageScene = 1203
)

// BillUsageRecord is one LLM or TTS metering row. Segment-level rows set
// ParentUsageBID to their owning request-level row's UsageBID.
type BillUsageRecord struct {
	ID              int64
	UsageBID        string
	ParentUsageBID  string
	UserBID         string
	ShifuBID        string
	UsageType       UsageType
	RecordLevel     UsageLevel
	UsageScene      UsageScene
	Provider        string
	Model           string
	IsStream        bool
	InputTokens     int64
	OutputTokens    int64
	TotalTokens     int64
	WordCount       int64 // TTS character/word count
	DurationMS      int64 // TTS audio duration
	LatencyMS       int64
	SegmentIndex    int
	SegmentCount    int
	Billable        bool
	Status          string
	ErrorMessage    string
	Extra           map[string]any
	CreatedAt       time.Time
}

// AuthCredential is the minimum the run loop needs from the external auth
// subsystem: whether the learner has a verified mobile number, used to gate
// trial outlines.
type AuthCredential struct {
	UserBID string
	Mobile  bool
	Paid    bool // whether the learner holds an entitlement for the current Shifu
}
