package mdflow

import "encoding/json"

// wireEvent mirrors Event's on-the-wire shape: a single polymorphic
// "content" field whose shape is determined by Type (see §6.2).
type wireEvent struct {
	OutlineBID        string    `json:"outline_bid"`
	GeneratedBlockBID string    `json:"generated_block_bid"`
	Type              EventType `json:"type"`
	Content           any       `json:"content"`
}

// MarshalJSON renders the event using the wire shape where "content" holds
// the type-specific payload (a plain string for content/interaction/break,
// a structured object otherwise).
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		OutlineBID:        e.OutlineBID,
		GeneratedBlockBID: e.GeneratedBlockBID,
		Type:              e.Type,
	}
	switch e.Type {
	case EventContent, EventInteraction:
		w.Content = e.Content
	case EventBreak, EventDone:
		w.Content = ""
	case EventVariableUpdate:
		w.Content = e.Variable
	case EventOutlineItemUpdate:
		w.Content = e.Outline
	case EventNewSlide:
		w.Content = e.Slide
	case EventAudioSegment:
		w.Content = e.Segment
	case EventAudioComplete:
		w.Content = e.Audio
	default:
		w.Content = e.Content
	}
	return json.Marshal(w)
}
