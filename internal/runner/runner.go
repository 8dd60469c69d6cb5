package runner

import (
	"context"
	"fmt"

	"github.com/haasonsaas/mdflow-engine/internal/events"
	"github.com/haasonsaas/mdflow-engine/internal/llm"
	"github.com/haasonsaas/mdflow-engine/internal/observability"
	"github.com/haasonsaas/mdflow-engine/internal/outline"
	"github.com/haasonsaas/mdflow-engine/internal/profile"
	"github.com/haasonsaas/mdflow-engine/pkg/mdflow"
)

// Config carries the Runner's process-wide defaults and tunables.
type Config struct {
	DefaultModel       string
	DefaultTemperature float64
	// MaxStepsPerRun guards run_script against a runaway continue chain
	// (an outline whose leaves never ask for input).
	MaxStepsPerRun int
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{DefaultModel: "gpt-4o-mini", DefaultTemperature: 0.7, MaxStepsPerRun: 64}
}

// Locker serialises runs for one (user, outline item) pair so two concurrent
// requests never race on the same progress record (§5).
type Locker interface {
	Lock(ctx context.Context, key string) error
	Unlock(key string)
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) error { return nil }
func (noopLocker) Unlock(string)                      {}

// Runner implements the Block Runner (C3): it advances one learner through
// one outline leaf's blocks, emitting RunMarkdownFlow events as it goes.
type Runner struct {
	cfg      Config
	store    outline.Store
	profiles profile.Store
	registry *llm.Registry
	risk     RiskValidator
	locker   Locker

	logger  *observability.Logger
	metrics *observability.Metrics
}

// SetObservability wires the process-wide structured logger and Prometheus
// metrics into the Runner (C10's entrypoint builds both once at startup).
// Either may be nil; Run guards every call.
func (r *Runner) SetObservability(logger *observability.Logger, metrics *observability.Metrics) {
	r.logger = logger
	r.metrics = metrics
}

// New builds a Runner from its dependencies. risk and locker may be nil:
// NopRiskValidator and a no-op locker are substituted respectively, the
// latter leaving concurrent runs unserialised (intended for tests only).
func New(cfg Config, store outline.Store, profiles profile.Store, registry *llm.Registry, risk RiskValidator, locker Locker) *Runner {
	if risk == nil {
		risk = NopRiskValidator{}
	}
	if locker == nil {
		locker = noopLocker{}
	}
	return &Runner{cfg: cfg, store: store, profiles: profiles, registry: registry, risk: risk, locker: locker}
}

// RunRequest is one invocation of the run_script loop: a learner's input (or
// its absence, for the first call against a fresh leaf) against one outline
// leaf.
type RunRequest struct {
	UserBID        string
	ShifuBID       string
	OutlineItemBID string
	PreviewMode    bool
	Auth           mdflow.AuthCredential

	InputType InputType
	Input     Input

	// ReloadTargetBID restarts the run from an earlier generated block
	// instead of continuing from the learner's current position (§4.6).
	// Empty for an ordinary advance.
	ReloadTargetBID string
}

func (req RunRequest) validate() error {
	if req.UserBID == "" || req.ShifuBID == "" || req.OutlineItemBID == "" {
		return fmt.Errorf("runner: user, shifu and outline item bids are required")
	}
	return nil
}

func lockKey(userBID, outlineItemBID string) string {
	return userBID + ":" + outlineItemBID
}

// Run drives the run_script loop (§4.3): it repeats a single run() step
// while the step reports CanContinue, switching InputType to "continue"
// after the first call, and emits every produced event through emitter.
// Run returns once the leaf blocks on learner input or the outline leaf
// (and any chapter boundary past it) has been fully advanced.
func (r *Runner) Run(ctx context.Context, req RunRequest, emitter *events.Emitter) (err error) {
	if err := req.validate(); err != nil {
		return err
	}

	ctx = observability.AddUserID(ctx, req.UserBID)
	ctx = observability.AddShifuID(ctx, req.ShifuBID)
	ctx = observability.AddPreviewMode(ctx, req.PreviewMode)
	if r.logger != nil || r.metrics != nil {
		ctx = observability.AddSessionID(ctx, req.OutlineItemBID)
	}
	if r.logger != nil {
		r.logger.Info(ctx, "run started", "shifu_bid", req.ShifuBID, "preview", req.PreviewMode)
	}
	defer func() {
		if r.metrics == nil {
			return
		}
		if err != nil {
			r.metrics.RecordRunAttempt("failed")
			r.metrics.RecordError("runner", "run_failed")
		} else {
			r.metrics.RecordRunAttempt("success")
		}
	}()

	key := lockKey(req.UserBID, req.OutlineItemBID)
	if err := r.locker.Lock(ctx, key); err != nil {
		return fmt.Errorf("runner: acquire run lock: %w", ErrRunLocked)
	}
	defer r.locker.Unlock(key)

	if err := r.store.EnsureProgressChain(ctx, req.UserBID, req.ShifuBID, req.OutlineItemBID); err != nil {
		return fmt.Errorf("runner: ensure progress chain: %w", err)
	}

	if req.ReloadTargetBID != "" {
		if err := r.reload(ctx, req); err != nil {
			return err
		}
	}

	state, err := r.loadState(ctx, req)
	if err != nil {
		return err
	}

	if err := r.enterLeafIfNeeded(ctx, req, emitter); err != nil {
		return err
	}

	steps := 0
	for {
		steps++
		if steps > r.cfg.MaxStepsPerRun {
			return fmt.Errorf("runner: exceeded %d steps in one run_script call", r.cfg.MaxStepsPerRun)
		}

		next, err := r.step(ctx, req, state, emitter)
		if err != nil {
			return err
		}
		state = next

		if err := r.store.SetBlockPosition(ctx, state.ProgressRecordBID, state.BlockPosition); err != nil {
			return fmt.Errorf("runner: persist block position: %w", err)
		}

		if !state.CanContinue {
			return nil
		}
		state.InputType = InputContinue
		state.Input = Input{}
		req.InputType = InputContinue
		req.Input = Input{}
	}
}

// loadState seeds a State from the learner's active progress record: a
// fresh leaf starts at block 0 expecting OUTPUT; a leaf with a pending
// active interaction row resumes at that position expecting INPUT.
func (r *Runner) loadState(ctx context.Context, req RunRequest) (*State, error) {
	progress, err := r.store.FindActiveProgress(ctx, req.UserBID, req.OutlineItemBID)
	if err != nil {
		return nil, fmt.Errorf("runner: load progress: %w", err)
	}

	state := &State{
		RunType:           RunOutput,
		CanContinue:       true,
		InputType:         req.InputType,
		Input:             req.Input,
		LastPosition:      progress.BlockPosition,
		ProgressRecordBID: progress.ProgressRecordBID,
		BlockPosition:     progress.BlockPosition,
	}

	if req.InputType == InputAsk {
		return state, nil
	}

	_, err = r.store.FindActiveGeneratedBlock(ctx, progress.ProgressRecordBID, progress.BlockPosition, mdflow.GeneratedInteraction)
	switch {
	case err == nil:
		state.RunType = RunInput
	case err == outline.ErrNotFound:
		state.RunType = RunOutput
	default:
		return nil, fmt.Errorf("runner: load pending interaction: %w", err)
	}
	return state, nil
}
