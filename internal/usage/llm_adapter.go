package usage

import (
	"context"
	"time"

	"github.com/haasonsaas/mdflow-engine/internal/llm"
	"github.com/haasonsaas/mdflow-engine/internal/observability"
	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// LLMAdapter binds a Recorder to one run's (user, outline/shifu, scene)
// triple so it can satisfy llm.UsageRecorder, whose call signature carries
// only provider/model/usage — not the ambient request identity.
type LLMAdapter struct {
	recorder *Recorder
	userBID  string
	shifuBID string
	scene    mdflow.UsageScene
}

// NewLLMAdapter returns a llm.UsageRecorder scoped to one request.
func NewLLMAdapter(recorder *Recorder, userBID, shifuBID string, scene mdflow.UsageScene) *LLMAdapter {
	return &LLMAdapter{recorder: recorder, userBID: userBID, shifuBID: shifuBID, scene: scene}
}

// RecordLLMUsage implements llm.UsageRecorder.
func (a *LLMAdapter) RecordLLMUsage(ctx context.Context, provider, model string, isStream bool, usage llm.Usage, latency time.Duration, err error) {
	a.recorder.RecordLLMUsage(ctx, LLMUsageInput{
		UserBID:      a.userBID,
		ShifuBID:     a.shifuBID,
		Provider:     provider,
		Model:        model,
		IsStream:     isStream,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.TotalTokens,
		LatencyMS:    latency.Milliseconds(),
		Scene:        a.scene,
		Err:          err,
	})
}

// ContextLLMAdapter satisfies llm.UsageRecorder without being bound to one
// request: the llm.Registry is a process-wide singleton, so the (user,
// shifu, scene) identity Runner.Run stamps onto ctx via
// observability.AddUserID/AddShifuID/AddPreviewMode is read back here
// instead of being fixed at construction time.
type ContextLLMAdapter struct {
	recorder *Recorder
}

// NewContextLLMAdapter returns a process-wide llm.UsageRecorder backed by
// recorder, attributing each call to the request identity found on ctx.
func NewContextLLMAdapter(recorder *Recorder) *ContextLLMAdapter {
	return &ContextLLMAdapter{recorder: recorder}
}

// RecordLLMUsage implements llm.UsageRecorder.
func (a *ContextLLMAdapter) RecordLLMUsage(ctx context.Context, provider, model string, isStream bool, usage llm.Usage, latency time.Duration, err error) {
	scene := mdflow.SceneProduction
	if observability.GetPreviewMode(ctx) {
		scene = mdflow.ScenePreview
	}
	a.recorder.RecordLLMUsage(ctx, LLMUsageInput{
		UserBID:      observability.GetUserID(ctx),
		ShifuBID:     observability.GetShifuID(ctx),
		Provider:     provider,
		Model:        model,
		IsStream:     isStream,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.TotalTokens,
		LatencyMS:    latency.Milliseconds(),
		Scene:        scene,
		Err:          err,
	})
}
