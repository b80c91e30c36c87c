package llm

// CalculateCost estimates cost based on model and token usage.
// Self-hosted models return 0 as cost is not per-token.
func CalculateCost(model string, promptTokens, completionTokens int) float64 {
	// Pricing per 1K tokens (input, output)
	prices := map[string]struct{ prompt, completion float64 }{
		"gpt-4o":            {0.0025, 0.010},
		"gpt-4o-mini":       {0.00015, 0.0006},
		"gpt-4":             {0.03, 0.06},
		"gpt-4-turbo":       {0.01, 0.03},
		"gpt-3.5-turbo":     {0.0005, 0.0015},
		"claude-3-opus":     {0.015, 0.075},
		"claude-3-sonnet":   {0.003, 0.015},
		"claude-3-haiku":    {0.00025, 0.00125},
		"claude-3-5-sonnet": {0.003, 0.015},
	}

	p, exists := prices[model]
	if !exists {
		return 0.0
	}

	promptCost := (float64(promptTokens) / 1000) * p.prompt
	completionCost := (float64(completionTokens) / 1000) * p.completion

	return promptCost + completionCost
}

// EstimateTokens approximates token count at 4 chars per token.
func EstimateTokens(text string) int {
	return len(text) / 4
}
