package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/haasonsaas/mdflow-engine/internal/events"
	"github.com/haasonsaas/mdflow-engine/internal/outline"
	"github.com/haasonsaas/mdflow-engine/internal/runner"
	"github.com/haasonsaas/mdflow-engine/internal/ttsengine"
	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func previewFromQuery(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("preview_mode"))
	return v
}

// requireAuth re-verifies the bearer token for handlers not wrapped by
// rateLimited (read-only and low-cost endpoints don't need throttling
// ahead of authentication).
func (e *engine) requireAuth(w http.ResponseWriter, r *http.Request) (mdflow.AuthCredential, bool) {
	if cred, ok := authFromContext(r.Context()); ok {
		return cred, true
	}
	cred, err := e.auth.authenticate(r)
	if err != nil || cred.UserBID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return mdflow.AuthCredential{}, false
	}
	return cred, true
}

// handleGetShifu implements GET /shifu/{shifu_bid} (§6.1): course-level
// metadata used to render the outline page header.
func (e *engine) handleGetShifu(w http.ResponseWriter, r *http.Request) {
	shifuBID := r.PathValue("shifu_bid")
	shifu, err := e.outlineStore.GetShifu(r.Context(), shifuBID, previewFromQuery(r))
	if errors.Is(err, outline.ErrNotFound) {
		writeError(w, http.StatusNotFound, "shifu not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, shifu)
}

// outlineTreeNode is the §6.1 outline-item-tree response shape: a StructNode
// annotated with the caller's learning progress.
type outlineTreeNode struct {
	BID         string                `json:"outline_bid"`
	Title       string                `json:"title"`
	Hidden      bool                  `json:"hidden"`
	Status      mdflow.ProgressStatus `json:"status"`
	HasChildren bool                  `json:"has_children"`
	Children    []*outlineTreeNode    `json:"children,omitempty"`
}

// handleOutlineTree implements GET /shifu/{shifu_bid}/outline-item-tree:
// the Outline Walker's navigation tree, each node stamped with the
// learner's progress status (§4.2).
func (e *engine) handleOutlineTree(w http.ResponseWriter, r *http.Request) {
	auth, ok := e.requireAuth(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	shifuBID := r.PathValue("shifu_bid")

	tree, err := e.outlineStore.GetStruct(ctx, shifuBID, previewFromQuery(r))
	if errors.Is(err, outline.ErrNotFound) {
		writeError(w, http.StatusNotFound, "shifu not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var outlineBIDs []string
	collectOutlineBIDs(tree.Root, &outlineBIDs)
	progress, err := e.outlineStore.FindProgressByOutlines(ctx, auth.UserBID, outlineBIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, buildOutlineTreeNode(tree.Root, progress))
}

func collectOutlineBIDs(node *mdflow.StructNode, out *[]string) {
	if node == nil {
		return
	}
	if node.Type == mdflow.StructOutline {
		*out = append(*out, node.BID)
	}
	for _, child := range node.Children {
		collectOutlineBIDs(child, out)
	}
}

func buildOutlineTreeNode(node *mdflow.StructNode, progress map[string]*mdflow.LearnProgressRecord) *outlineTreeNode {
	if node == nil {
		return nil
	}
	status := mdflow.StatusNotStarted
	if p, ok := progress[node.BID]; ok {
		status = p.Status
	}
	out := &outlineTreeNode{
		BID:         node.BID,
		Title:       node.Title,
		Hidden:      node.Hidden,
		Status:      status,
		HasChildren: len(node.Children) > 0 && !node.IsLeaf(),
	}
	if out.HasChildren {
		for _, child := range node.Children {
			out.Children = append(out.Children, buildOutlineTreeNode(child, progress))
		}
	}
	return out
}

// runRequestBody is the §6.1 PUT/POST run body: a learner's answer (or its
// absence, for the first call against a fresh leaf) plus an optional reload
// target.
type runRequestBody struct {
	Input                   string              `json:"input"`
	InputType               string              `json:"input_type"`
	Values                  map[string][]string `json:"values"`
	ReloadGeneratedBlockBID string              `json:"reload_generated_block_bid"`
}

func (e *engine) handleRun(w http.ResponseWriter, r *http.Request) {
	e.serveRun(w, r, false)
}

func (e *engine) handlePreview(w http.ResponseWriter, r *http.Request) {
	e.serveRun(w, r, true)
}

// serveRun drives one run_script call and streams its events back over SSE
// (§6.1, §6.2), bridging the Block Runner's event stream into the
// Streaming TTS Orchestrator (C7) through a ttsengine.FeedingSink.
func (e *engine) serveRun(w http.ResponseWriter, r *http.Request, preview bool) {
	auth, ok := e.requireAuth(w, r)
	if !ok {
		return
	}
	if preview {
		// Preview runs are an authoring-side dry run: entitlement gates
		// don't apply (spec.md §7: PaidException fires "in non-preview
		// mode").
		auth.Paid = true
		auth.Mobile = true
	}

	shifuBID := r.PathValue("shifu_bid")
	outlineBID := r.PathValue("outline_bid")

	var body runRequestBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	ctx := r.Context()
	if err := e.outlineStore.EnsureProgressChain(ctx, auth.UserBID, shifuBID, outlineBID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	progressRecordBID := ""
	if progress, err := e.outlineStore.FindActiveProgress(ctx, auth.UserBID, outlineBID); err == nil {
		progressRecordBID = progress.ProgressRecordBID
	}

	scene := mdflow.SceneProduction
	if preview {
		scene = mdflow.ScenePreview
	}

	sw, err := events.NewStreamWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	chanSink := events.NewChanSink(64)
	newOrch := func(generatedBlockBID string) *ttsengine.Orchestrator {
		orchEmitter := events.NewEmitter(outlineBID, chanSink)
		orchEmitter.SetGeneratedBlock(generatedBlockBID)
		orch := ttsengine.New(ttsengine.DefaultConfig(), e.ttsPool, e.ttsSynth, e.ttsUploader, e.ttsStore, e.usageRec, orchEmitter, ttsengine.RequestIdentity{
			UserBID:           auth.UserBID,
			ShifuBID:          shifuBID,
			ProgressRecordBID: progressRecordBID,
			GeneratedBlockBID: generatedBlockBID,
			Scene:             scene,
		})
		orch.SetLogger(e.logger)
		return orch
	}
	emitter := events.NewEmitter(outlineBID, ttsengine.NewFeedingSink(chanSink, preview, newOrch))

	req := runner.RunRequest{
		UserBID:         auth.UserBID,
		ShifuBID:        shifuBID,
		OutlineItemBID:  outlineBID,
		PreviewMode:     preview,
		Auth:            auth,
		InputType:       runner.InputNormal,
		Input:           runner.Input{Text: body.Input, Values: body.Values},
		ReloadTargetBID: body.ReloadGeneratedBlockBID,
	}
	if body.InputType != "" {
		req.InputType = runner.InputType(body.InputType)
	}

	trackKey := auth.UserBID + ":" + outlineBID
	e.inflight.Store(trackKey, time.Now())

	go func() {
		defer e.inflight.Delete(trackKey)
		runErr := e.runner.Run(ctx, req, emitter)

		var paidErr *runner.PaidException
		var loginErr *runner.UserNotLoginException
		switch {
		case runErr == nil:
		case errors.As(runErr, &paidErr):
			emitter.Interaction(ctx, "?[Unlock this content//_sys_pay]")
		case errors.As(runErr, &loginErr):
			emitter.Interaction(ctx, "?[Log in to continue//_sys_login]")
		default:
			emitter.Error(ctx, runErr.Error())
		}
		emitter.Done(ctx)
		chanSink.Close()
	}()

	if err := sw.Pump(chanSink.Events()); err != nil && e.logger != nil {
		e.logger.Error(ctx, "sse stream write failed", "error", err)
	}
}

// handleRunStatus implements GET /shifu/{shifu_bid}/run/{outline_bid}: a
// cheap poll endpoint for whether the learner already has a run_script call
// in flight for this outline leaf, and for how long.
func (e *engine) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	auth, ok := e.requireAuth(w, r)
	if !ok {
		return
	}
	key := auth.UserBID + ":" + r.PathValue("outline_bid")
	v, running := e.inflight.Load(key)
	resp := map[string]any{"is_running": running}
	if running {
		resp["running_time_ms"] = time.Since(v.(time.Time)).Milliseconds()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListRecords implements GET /shifu/{shifu_bid}/records/{outline_bid}:
// the generated-block transcript for the learner's active progress record.
func (e *engine) handleListRecords(w http.ResponseWriter, r *http.Request) {
	auth, ok := e.requireAuth(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	progress, err := e.outlineStore.FindActiveProgress(ctx, auth.UserBID, r.PathValue("outline_bid"))
	if errors.Is(err, outline.ErrNoActiveProgress) {
		writeJSON(w, http.StatusOK, []*mdflow.LearnGeneratedBlock{})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	blocks, err := e.outlineStore.ListGeneratedBlocks(ctx, progress.ProgressRecordBID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

// handleResetRecords implements DELETE /shifu/{shifu_bid}/records/{outline_bid}
// (§4.2 outline boundary RESET): clears the learner's progress so the next
// run_script call starts the leaf over.
func (e *engine) handleResetRecords(w http.ResponseWriter, r *http.Request) {
	auth, ok := e.requireAuth(w, r)
	if !ok {
		return
	}
	shifuBID := r.PathValue("shifu_bid")
	outlineBID := r.PathValue("outline_bid")
	if err := e.outlineStore.UpsertProgress(r.Context(), auth.UserBID, shifuBID, outlineBID, mdflow.StatusReset, false); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var likeValues = map[string]int{"like": 1, "dislike": -1, "none": 0}

// handleReact implements POST .../generated-contents/{bid}/{action}: a
// learner's like/dislike/clear reaction to one generated block.
func (e *engine) handleReact(w http.ResponseWriter, r *http.Request) {
	if _, ok := e.requireAuth(w, r); !ok {
		return
	}
	liked, ok := likeValues[r.PathValue("action")]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown reaction action")
		return
	}
	if err := e.outlineStore.SetGeneratedBlockLiked(r.Context(), r.PathValue("bid"), liked); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetGeneratedContent implements GET .../generated-contents/{bid}:
// the reload contract's lookup of one generated block row (§4.6).
func (e *engine) handleGetGeneratedContent(w http.ResponseWriter, r *http.Request) {
	if _, ok := e.requireAuth(w, r); !ok {
		return
	}
	block, err := e.outlineStore.FindGeneratedBlockByBID(r.Context(), r.PathValue("bid"))
	if errors.Is(err, outline.ErrNotFound) {
		writeError(w, http.StatusNotFound, "generated block not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, block)
}
