package router

import "github.com/Tosin-A/Cora-Lockin-sub002/internal/models"

// RelationshipWindow is the number of first inbound messages that always
// route multi-turn. A new user's early turns build a continuous context
// regardless of how simple they look.
const RelationshipWindow = 3

// Decision is the selector's output: which path answers the message and
// which model tier backs it.
type Decision struct {
	Kind models.RouteKind
	Tier models.ModelTier
}

// Select applies the fixed routing policy. The rule order is deliberate and
// not configurable per call, so cost guarantees stay auditable: the only way
// onto the expensive path is the relationship window or a classified-complex
// type. countErr marks routing-time data failures, which fail toward quality
// (multi-turn), never toward silent cost savings.
func Select(msgType models.MessageType, messageCount int, countErr error) Decision {
	if countErr != nil {
		return Decision{Kind: models.RouteMultiTurn, Tier: models.TierPremium}
	}
	if messageCount < RelationshipWindow {
		return Decision{Kind: models.RouteMultiTurn, Tier: models.TierPremium}
	}
	if models.IsComplexMessageType(msgType) {
		return Decision{Kind: models.RouteMultiTurn, Tier: models.TierPremium}
	}
	return Decision{Kind: models.RouteSingleShot, Tier: models.TierCheap}
}

// ModelConfig is the per-tier generation configuration.
type ModelConfig struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	CostPer1K   float64
}

var tierConfigs = map[models.ModelTier]ModelConfig{
	models.TierCheap: {
		Model:       "gpt-4o-mini",
		MaxTokens:   150,
		Temperature: 0.7,
		CostPer1K:   0.00015,
	},
	models.TierPremium: {
		Model:       "gpt-4",
		MaxTokens:   300,
		Temperature: 0.8,
		CostPer1K:   0.03,
	},
}

// TierConfig returns the generation configuration for a model tier.
func TierConfig(tier models.ModelTier) (ModelConfig, bool) {
	cfg, ok := tierConfigs[tier]
	return cfg, ok
}

// EstimateUsage approximates the token count and cost of one generation:
// roughly four characters per input token with a floor of 50, plus the
// tier's full output budget. Ledger estimates, not billing truth.
func EstimateUsage(text string, tier models.ModelTier) (int, float64) {
	cfg, ok := tierConfigs[tier]
	if !ok {
		return 0, 0
	}
	input := len(text) / 4
	if input < 50 {
		input = 50
	}
	tokens := input + int(cfg.MaxTokens)
	return tokens, float64(tokens) / 1000 * cfg.CostPer1K
}
