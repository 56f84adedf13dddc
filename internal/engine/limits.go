package engine

import "strings"

// GetModelLimits returns a budget sized to the model's context window.
// Ollama defaults to a small num_ctx, so the fallback stays conservative.
func GetModelLimits(model string) BudgetConfig {
	modelLower := strings.ToLower(model)

	switch {
	// 128k-class local models
	case strings.Contains(modelLower, "llama3.1"),
		strings.Contains(modelLower, "llama3.2"),
		strings.Contains(modelLower, "qwen2.5"),
		strings.Contains(modelLower, "qwen3"),
		strings.Contains(modelLower, "mistral-nemo"):
		return BudgetConfig{
			SoftLimit:            24000,
			HardLimit:            30000,
			MaxCompressionPasses: 5,
			ReserveTokens:        2000,
		}

	// deepseek-coder-v2 and friends (64k)
	case strings.Contains(modelLower, "deepseek"):
		return BudgetConfig{
			SoftLimit:            50000,
			HardLimit:            60000,
			MaxCompressionPasses: 5,
			ReserveTokens:        3000,
		}

	// hosted frontier models
	case strings.Contains(modelLower, "gpt-4o"):
		return BudgetConfig{
			SoftLimit:            100000,
			HardLimit:            120000,
			MaxCompressionPasses: 5,
			ReserveTokens:        4000,
		}
	case strings.Contains(modelLower, "claude"), strings.Contains(modelLower, "sonnet"), strings.Contains(modelLower, "opus"):
		return BudgetConfig{
			SoftLimit:            150000,
			HardLimit:            190000,
			MaxCompressionPasses: 5,
			ReserveTokens:        4000,
		}
	}

	return DefaultBudgetConfig()
}
