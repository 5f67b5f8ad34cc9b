package cost

import (
	"github.com/yukkuri-system/workflow-core/contracts"
)

const defaultCharsPerToken = 4

// TokenEstimator approximates a token count from raw text using a
// character-based heuristic, for stage processors that need to report
// RecordApiUsage before a provider's own usage accounting is available
// (e.g. to pre-flight a budget check).
type TokenEstimator struct {
	charsPerToken int
}

// NewTokenEstimator creates a TokenEstimator with the default 4 chars/token
// ratio.
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{charsPerToken: defaultCharsPerToken}
}

// NewTokenEstimatorWithRatio creates a TokenEstimator with a custom
// chars-per-token ratio. ratio <= 0 falls back to the default.
func NewTokenEstimatorWithRatio(ratio int) *TokenEstimator {
	if ratio <= 0 {
		ratio = defaultCharsPerToken
	}
	return &TokenEstimator{charsPerToken: ratio}
}

// Estimate returns the estimated token count of text. A non-empty text
// always estimates at least 1 token, so a tiny request can't bypass a
// budget check by rounding to zero.
func (e *TokenEstimator) Estimate(text string) contracts.TokenCount {
	if len(text) == 0 {
		return 0
	}
	tokens := len(text) / e.charsPerToken
	if tokens == 0 {
		tokens = 1
	}
	return contracts.TokenCount(tokens)
}

// EstimateMap sums the estimate over every string value in fields, the
// shape a stage's merged input map (contracts.StageContext.Input) takes.
func (e *TokenEstimator) EstimateMap(fields map[string]interface{}) contracts.TokenCount {
	var total contracts.TokenCount
	for _, v := range fields {
		if s, ok := v.(string); ok {
			total += e.Estimate(s)
		}
	}
	return total
}
