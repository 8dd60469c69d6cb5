package mdflow

// EventType identifies the kind of RunMarkdownFlow event on the wire.
type EventType string

const (
	EventContent            EventType = "content"
	EventBreak              EventType = "break"
	EventInteraction        EventType = "interaction"
	EventVariableUpdate     EventType = "variable_update"
	EventOutlineItemUpdate  EventType = "outline_item_update"
	EventNewSlide           EventType = "new_slide"
	EventAudioSegment       EventType = "audio_segment"
	EventAudioComplete      EventType = "audio_complete"
	EventDone               EventType = "done"

	// EventError terminates a stream with a failure message instead of
	// translating into an INTERACTION (§7 propagation policy): "a
	// terminating SSE error payload ... followed by done".
	EventError EventType = "error"
)

// Event is one frame of the RunMarkdownFlow stream: {outline_bid,
// generated_block_bid, type, content}. Exactly one of the typed Content*
// fields is populated for a given Type; Content carries the plain string
// payload for "content" and "interaction" events.
type Event struct {
	OutlineBID        string    `json:"outline_bid"`
	GeneratedBlockBID string    `json:"generated_block_bid"`
	Type              EventType `json:"type"`

	// Content carries the plain string payload for EventContent (a text
	// chunk) and EventInteraction (the verbatim interaction source).
	Content string `json:"content,omitempty"`

	Variable *VariableUpdatePayload    `json:"-"`
	Outline  *OutlineItemUpdatePayload `json:"-"`
	Slide    *NewSlidePayload          `json:"-"`
	Segment  *AudioSegmentPayload      `json:"-"`
	Audio    *AudioCompletePayload     `json:"-"`
}

// VariableUpdatePayload is the structured content of a variable_update event.
type VariableUpdatePayload struct {
	VariableName  string `json:"variable_name"`
	VariableValue string `json:"variable_value"`
}

// OutlineItemUpdatePayload is the structured content of an
// outline_item_update event.
type OutlineItemUpdatePayload struct {
	OutlineBID  string         `json:"outline_bid"`
	Title       string         `json:"title"`
	Status      ProgressStatus `json:"status"`
	HasChildren bool           `json:"has_children"`
}

// NewSlidePayload hints to the client that a visual should render aligned
// with the audio part that follows it.
type NewSlidePayload struct {
	SlideID           string `json:"slide_id"`
	GeneratedBlockBID string `json:"generated_block_bid"`
	SlideIndex        int    `json:"slide_index"`
	AudioPosition     int    `json:"audio_position"`
	VisualKind        string `json:"visual_kind"`
	SegmentType       string `json:"segment_type"`
	SegmentContent    string `json:"segment_content"`
	SourceSpan        [2]int `json:"source_span"`
	IsPlaceholder     bool   `json:"is_placeholder"`
}

// AudioSegmentPayload is the structured content of an audio_segment event.
type AudioSegmentPayload struct {
	Position     int    `json:"position"`
	SegmentIndex int    `json:"segment_index"`
	AudioData    string `json:"audio_data"` // base64
	DurationMS   int64  `json:"duration_ms"`
	IsFinal      bool   `json:"is_final"`
}

// AudioCompletePayload is the structured content of an audio_complete event.
type AudioCompletePayload struct {
	Position   int    `json:"position"`
	AudioURL   string `json:"audio_url"`
	AudioBID   string `json:"audio_bid"`
	DurationMS int64  `json:"duration_ms"`
}
