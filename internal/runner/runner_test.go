package runner

import (
	"context"
	"testing"

	"github.com/haasonsaas/mdflow-engine/internal/events"
	"github.com/haasonsaas/mdflow-engine/internal/llm"
	"github.com/haasonsaas/mdflow-engine/internal/outline"
	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

const testDoc = "Welcome to the lesson.\n?[%{{name}}...What is your name?]\nThanks {{name}}!"

// fakeOutlineStore is an in-memory outline.Store standing in for Postgres:
// one Shifu with a single outline leaf, enough to exercise the Block
// Runner's full step/boundary/persistence flow.
type fakeOutlineStore struct {
	tree  *mdflow.StructTree
	shifu *mdflow.Shifu
	items map[string]*mdflow.OutlineItem

	progress    map[string]*mdflow.LearnProgressRecord
	blocks      []*mdflow.LearnGeneratedBlock
	nextProgID  int64
	nextBlockID int64
}

func newFakeOutlineStore() *fakeOutlineStore {
	return &fakeOutlineStore{
		tree: &mdflow.StructTree{
			ShifuBID: "shifu-1",
			Root: &mdflow.StructNode{
				BID:  "shifu-1",
				Type: mdflow.StructShifu,
				Children: []*mdflow.StructNode{
					{BID: "leaf-1", Type: mdflow.StructOutline, Title: "Leaf One"},
				},
			},
		},
		shifu: &mdflow.Shifu{ShifuBID: "shifu-1", LLMSystemPrompt: "You are a tutor."},
		items: map[string]*mdflow.OutlineItem{
			"leaf-1": {OutlineItemBID: "leaf-1", ShifuBID: "shifu-1", Title: "Leaf One", Mdflow: testDoc},
		},
		progress: map[string]*mdflow.LearnProgressRecord{},
	}
}

func (s *fakeOutlineStore) GetStruct(ctx context.Context, shifuBID string, previewMode bool) (*mdflow.StructTree, error) {
	return s.tree, nil
}

func (s *fakeOutlineStore) GetOutlineWithMdflow(ctx context.Context, outlineItemBID string, previewMode bool) (*mdflow.OutlineItem, error) {
	item, ok := s.items[outlineItemBID]
	if !ok {
		return nil, outline.ErrNotFound
	}
	return item, nil
}

func (s *fakeOutlineStore) GetShifu(ctx context.Context, shifuBID string, previewMode bool) (*mdflow.Shifu, error) {
	return s.shifu, nil
}

func (s *fakeOutlineStore) FindActiveProgress(ctx context.Context, userBID, outlineItemBID string) (*mdflow.LearnProgressRecord, error) {
	rec, ok := s.progress[outlineItemBID]
	if !ok {
		return nil, outline.ErrNoActiveProgress
	}
	return rec, nil
}

func (s *fakeOutlineStore) FindProgressByOutlines(ctx context.Context, userBID string, outlineItemBIDs []string) (map[string]*mdflow.LearnProgressRecord, error) {
	out := make(map[string]*mdflow.LearnProgressRecord)
	for _, bid := range outlineItemBIDs {
		if rec, ok := s.progress[bid]; ok {
			out[bid] = rec
		}
	}
	return out, nil
}

func (s *fakeOutlineStore) EnsureProgressChain(ctx context.Context, userBID, shifuBID, outlineItemBID string) error {
	if _, ok := s.progress[outlineItemBID]; ok {
		return nil
	}
	s.nextProgID++
	s.progress[outlineItemBID] = &mdflow.LearnProgressRecord{
		ID: s.nextProgID, ProgressRecordBID: mdflow.NewBID(), UserBID: userBID, ShifuBID: shifuBID,
		OutlineItemBID: outlineItemBID, Status: mdflow.StatusNotStarted,
	}
	return nil
}

func (s *fakeOutlineStore) UpsertProgress(ctx context.Context, userBID, shifuBID, outlineItemBID string, status mdflow.ProgressStatus, resetPosition bool) error {
	rec, ok := s.progress[outlineItemBID]
	if !ok {
		s.nextProgID++
		rec = &mdflow.LearnProgressRecord{ID: s.nextProgID, ProgressRecordBID: mdflow.NewBID(), UserBID: userBID, ShifuBID: shifuBID, OutlineItemBID: outlineItemBID}
		s.progress[outlineItemBID] = rec
	}
	rec.Status = status
	if resetPosition {
		rec.BlockPosition = 0
	}
	return nil
}

func (s *fakeOutlineStore) SetBlockPosition(ctx context.Context, progressRecordBID string, position int) error {
	for _, rec := range s.progress {
		if rec.ProgressRecordBID == progressRecordBID {
			rec.BlockPosition = position
			return nil
		}
	}
	return outline.ErrNotFound
}

func (s *fakeOutlineStore) AppendGeneratedBlock(ctx context.Context, block *mdflow.LearnGeneratedBlock) (string, error) {
	s.nextBlockID++
	cp := *block
	cp.ID = s.nextBlockID
	if cp.GeneratedBlockBID == "" {
		cp.GeneratedBlockBID = mdflow.NewBID()
	}
	cp.Status = 1
	s.blocks = append(s.blocks, &cp)
	return cp.GeneratedBlockBID, nil
}

func (s *fakeOutlineStore) UpdateGeneratedBlock(ctx context.Context, generatedBlockBID string, role mdflow.GeneratedBlockRole, generatedContent string) error {
	for _, b := range s.blocks {
		if b.GeneratedBlockBID == generatedBlockBID {
			b.Role = role
			b.GeneratedContent = generatedContent
			return nil
		}
	}
	return outline.ErrNotFound
}

func (s *fakeOutlineStore) FindActiveGeneratedBlock(ctx context.Context, progressRecordBID string, position int, blockType mdflow.GeneratedBlockType) (*mdflow.LearnGeneratedBlock, error) {
	var found *mdflow.LearnGeneratedBlock
	for _, b := range s.blocks {
		if b.ProgressRecordBID == progressRecordBID && b.Position == position && b.Type == blockType && b.Status == 1 && !b.Deleted {
			if found == nil || b.ID > found.ID {
				found = b
			}
		}
	}
	if found == nil {
		return nil, outline.ErrNotFound
	}
	return found, nil
}

func (s *fakeOutlineStore) FindGeneratedBlockByBID(ctx context.Context, generatedBlockBID string) (*mdflow.LearnGeneratedBlock, error) {
	for _, b := range s.blocks {
		if b.GeneratedBlockBID == generatedBlockBID {
			return b, nil
		}
	}
	return nil, outline.ErrNotFound
}

func (s *fakeOutlineStore) MarkGeneratedBlocksObsolete(ctx context.Context, progressRecordBID string, fromPosition int, anchorID int64) error {
	for _, b := range s.blocks {
		if b.ProgressRecordBID == progressRecordBID && b.Position >= fromPosition && b.ID >= anchorID && b.Status == 1 {
			b.Status = 0
		}
	}
	return nil
}

func (s *fakeOutlineStore) SetGeneratedBlockLiked(ctx context.Context, generatedBlockBID string, liked int) error {
	for _, b := range s.blocks {
		if b.GeneratedBlockBID == generatedBlockBID {
			b.Liked = liked
			return nil
		}
	}
	return outline.ErrNotFound
}

func (s *fakeOutlineStore) ListGeneratedBlocks(ctx context.Context, progressRecordBID string) ([]*mdflow.LearnGeneratedBlock, error) {
	var out []*mdflow.LearnGeneratedBlock
	for _, b := range s.blocks {
		if b.ProgressRecordBID == progressRecordBID && !b.Deleted {
			out = append(out, b)
		}
	}
	return out, nil
}

// fakeProfileStore is an in-memory profile.Store.
type fakeProfileStore struct {
	vars map[string]map[string]string
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{vars: make(map[string]map[string]string)}
}

func (f *fakeProfileStore) GetAll(ctx context.Context, userBID, shifuBID string) (map[string]string, error) {
	out := make(map[string]string)
	for k, v := range f.vars[userBID+":"+shifuBID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeProfileStore) Set(ctx context.Context, userBID, shifuBID, name, value string) error {
	key := userBID + ":" + shifuBID
	if f.vars[key] == nil {
		f.vars[key] = make(map[string]string)
	}
	f.vars[key][name] = value
	return nil
}

// fakeProvider echoes its prompt on Stream and never flags an extraction on
// Complete, so handleInteraction falls back to recording the learner's raw
// answer (see markdownflow.parseExtractionResponse).
type fakeProvider struct{}

func (fakeProvider) Name() string { return "fake" }

func (fakeProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
	return &llm.CompletionResult{Text: "ok"}, nil
}

func (fakeProvider) Stream(ctx context.Context, req *llm.CompletionRequest) (<-chan *llm.CompletionChunk, error) {
	out := make(chan *llm.CompletionChunk, 1)
	text := ""
	if len(req.Messages) > 0 {
		text = req.Messages[0].Content
	}
	go func() {
		defer close(out)
		out <- &llm.CompletionChunk{Text: text}
	}()
	return out, nil
}

func newTestRunner() (*Runner, *fakeOutlineStore) {
	registry := llm.NewRegistry()
	registry.Register("fake", fakeProvider{})
	registry.Route(llm.ModelRoute{Alias: "test-model", Provider: "fake", InvokeModel: "test-model"})

	store := newFakeOutlineStore()
	cfg := DefaultConfig()
	cfg.DefaultModel = "test-model"

	r := New(cfg, store, newFakeProfileStore(), registry, nil, nil)
	return r, store
}

func drainEvents(sink *events.ChanSink) []mdflow.Event {
	sink.Close()
	var out []mdflow.Event
	for ev := range sink.Events() {
		out = append(out, ev)
	}
	return out
}

func TestRunnerStreamsContentThenBlocksOnInteraction(t *testing.T) {
	r, _ := newTestRunner()
	sink := events.NewChanSink(64)
	emitter := events.NewEmitter("leaf-1", sink)

	req := RunRequest{UserBID: "user-1", ShifuBID: "shifu-1", OutlineItemBID: "leaf-1", InputType: InputNormal}
	if err := r.Run(context.Background(), req, emitter); err != nil {
		t.Fatalf("run: %v", err)
	}

	evs := drainEvents(sink)
	var sawContent, sawBreak, sawInteraction, sawLeafStart bool
	for _, ev := range evs {
		switch ev.Type {
		case mdflow.EventContent:
			sawContent = true
		case mdflow.EventBreak:
			sawBreak = true
		case mdflow.EventInteraction:
			sawInteraction = true
			if ev.Content == "" {
				t.Fatalf("expected interaction content, got empty")
			}
		case mdflow.EventOutlineItemUpdate:
			if ev.Outline.Status == mdflow.StatusInProgress {
				sawLeafStart = true
			}
		}
	}
	if !sawContent || !sawBreak || !sawInteraction || !sawLeafStart {
		t.Fatalf("missing expected event types: %+v", evs)
	}
}

func TestRunnerRecordsAnswerAndCompletesLeaf(t *testing.T) {
	r, store := newTestRunner()
	setupSink := events.NewChanSink(64)
	setupEmitter := events.NewEmitter("leaf-1", setupSink)
	req := RunRequest{UserBID: "user-1", ShifuBID: "shifu-1", OutlineItemBID: "leaf-1", InputType: InputNormal}
	if err := r.Run(context.Background(), req, setupEmitter); err != nil {
		t.Fatalf("first run: %v", err)
	}
	drainEvents(setupSink)

	sink := events.NewChanSink(64)
	emitter := events.NewEmitter("leaf-1", sink)
	answerReq := RunRequest{
		UserBID: "user-1", ShifuBID: "shifu-1", OutlineItemBID: "leaf-1",
		InputType: InputNormal, Input: Input{Text: "Ada"},
	}
	if err := r.Run(context.Background(), answerReq, emitter); err != nil {
		t.Fatalf("second run: %v", err)
	}

	evs := drainEvents(sink)
	var sawVariableUpdate, sawLeafCompleted bool
	var content string
	for _, ev := range evs {
		switch ev.Type {
		case mdflow.EventVariableUpdate:
			sawVariableUpdate = true
			if ev.Variable.VariableName != "name" || ev.Variable.VariableValue != "Ada" {
				t.Fatalf("unexpected variable update: %+v", ev.Variable)
			}
		case mdflow.EventContent:
			content += ev.Content
		case mdflow.EventOutlineItemUpdate:
			if ev.Outline.Status == mdflow.StatusCompleted {
				sawLeafCompleted = true
			}
		}
	}
	if !sawVariableUpdate {
		t.Fatalf("expected a variable_update event, got %+v", evs)
	}
	if !sawLeafCompleted {
		t.Fatalf("expected the leaf to complete, got %+v", evs)
	}
	if content == "" {
		t.Fatalf("expected substituted trailing content to stream")
	}

	profile, _ := r.profiles.GetAll(context.Background(), "user-1", "shifu-1")
	if profile["name"] != "Ada" {
		t.Fatalf("expected learner profile to record name=Ada, got %+v", profile)
	}

	rec, err := store.FindActiveProgress(context.Background(), "user-1", "leaf-1")
	if err != nil {
		t.Fatalf("find active progress: %v", err)
	}
	if rec.Status != mdflow.StatusCompleted {
		t.Fatalf("expected progress status completed, got %s", rec.Status)
	}
}

func TestInputNormaliseJoinsAndFiltersEmpty(t *testing.T) {
	in := Input{Values: map[string][]string{"choice": {"a", "", "b"}}}
	out := in.Normalise("choice")
	if len(out["choice"]) != 2 || out["choice"][0] != "a" || out["choice"][1] != "b" {
		t.Fatalf("unexpected normalise output: %+v", out)
	}

	plain := Input{Text: "hello"}
	out = plain.Normalise("greeting")
	if len(out["greeting"]) != 1 || out["greeting"][0] != "hello" {
		t.Fatalf("unexpected plain normalise output: %+v", out)
	}
}
