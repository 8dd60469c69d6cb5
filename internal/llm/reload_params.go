package llm

import "strings"

// ResolveReloadParams normalises per-model-family knobs. The rules below
// must be preserved exactly (§4.5): within a family, more specific prefixes
// are tried before their more general siblings so that e.g. "gpt-5.2-mini"
// matches the gpt-5.2 rule rather than falling through to gpt-5.
func ResolveReloadParams(provider, invokeModel string, temperature float64) ReloadParams {
	t := temperature
	switch strings.ToLower(provider) {
	case "openai":
		return resolveOpenAIParams(invokeModel, t)
	case "gemini", "google":
		return resolveGeminiParams(invokeModel, t)
	case "ark":
		return ReloadParams{
			Temperature: &t,
			ExtraBody:   map[string]any{"thinking": map[string]any{"type": "disabled"}},
		}
	case "silicon":
		return ReloadParams{
			Temperature: &t,
			ExtraBody:   map[string]any{"enable_thinking": false},
		}
	default:
		return ReloadParams{Temperature: &t}
	}
}

func resolveOpenAIParams(model string, t float64) ReloadParams {
	m := strings.ToLower(model)
	one := 1.0
	switch {
	case strings.HasPrefix(m, "gpt-5.2"):
		return ReloadParams{ReasoningEffort: "none", Temperature: &t}
	case strings.HasPrefix(m, "gpt-5.1"):
		return ReloadParams{ReasoningEffort: "none", Temperature: &one}
	case strings.HasPrefix(m, "gpt-5-pro"):
		return ReloadParams{ReasoningEffort: "none"}
	case strings.HasPrefix(m, "gpt-5"):
		return ReloadParams{ReasoningEffort: "minimal", Temperature: &one}
	default:
		return ReloadParams{Temperature: &t}
	}
}

func resolveGeminiParams(model string, t float64) ReloadParams {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gemini-2.5-pro"), strings.HasPrefix(m, "gemini-3"):
		return ReloadParams{ReasoningEffort: "low", Temperature: &t}
	default:
		return ReloadParams{ReasoningEffort: "none", Temperature: &t}
	}
}
