package runner

import (
	"context"

	"github.com/haasonsaas/mdflow-engine/internal/markdownflow"
	"github.com/haasonsaas/mdflow-engine/internal/outline"
)

// ancestorSettings is the per-node {llm, llm_temperature, llm_system_prompt}
// triple the Runner walks from leaf up to Shifu (§4.3.1-2), nearest
// non-null value wins for each field independently.
type ancestorSettings struct {
	llm             string
	llmTemperature  *float64
	llmSystemPrompt string
}

// resolveLLMSettings walks the outline ancestor chain (leaf first, Shifu
// last) preferring the nearest non-null (llm, llm_temperature), then falls
// back to r.cfg.DefaultModel/DefaultTemperature.
func (r *Runner) resolveLLMSettings(ctx context.Context, shifuBID, outlineItemBID string, previewMode bool) (markdownflow.LLMSettings, error) {
	chain, err := r.ancestorChain(ctx, shifuBID, outlineItemBID, previewMode)
	if err != nil {
		return markdownflow.LLMSettings{}, err
	}

	settings := markdownflow.LLMSettings{Model: r.cfg.DefaultModel, Temperature: r.cfg.DefaultTemperature}
	for _, node := range chain {
		if node.llm != "" {
			settings.Model = node.llm
			break
		}
	}
	for _, node := range chain {
		if node.llmTemperature != nil {
			settings.Temperature = *node.llmTemperature
			break
		}
	}
	return settings, nil
}

// resolveDocumentPrompt walks the same chain preferring the nearest
// non-empty llm_system_prompt.
func (r *Runner) resolveDocumentPrompt(ctx context.Context, shifuBID, outlineItemBID string, previewMode bool) (string, error) {
	chain, err := r.ancestorChain(ctx, shifuBID, outlineItemBID, previewMode)
	if err != nil {
		return "", err
	}
	for _, node := range chain {
		if node.llmSystemPrompt != "" {
			return node.llmSystemPrompt, nil
		}
	}
	return "", nil
}

// ancestorChain returns the outline leaf's own settings first, its outline
// ancestors next (nearest first), and the Shifu last.
func (r *Runner) ancestorChain(ctx context.Context, shifuBID, outlineItemBID string, previewMode bool) ([]ancestorSettings, error) {
	tree, err := r.store.GetStruct(ctx, shifuBID, previewMode)
	if err != nil {
		return nil, err
	}

	var chain []ancestorSettings
	for _, bid := range outline.AncestorBIDs(tree, outlineItemBID) {
		item, err := r.store.GetOutlineWithMdflow(ctx, bid, previewMode)
		if err != nil {
			return nil, err
		}
		chain = append(chain, ancestorSettings{llm: item.LLM, llmTemperature: item.LLMTemperature, llmSystemPrompt: item.LLMSystemPrompt})
	}

	shifu, err := r.store.GetShifu(ctx, shifuBID, previewMode)
	if err != nil {
		return nil, err
	}
	chain = append(chain, ancestorSettings{llm: shifu.LLM, llmTemperature: shifu.LLMTemperature, llmSystemPrompt: shifu.LLMSystemPrompt})

	return chain, nil
}
