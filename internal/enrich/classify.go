package enrich

import (
	"errors"
	"net/http"
	"strings"

	"github.com/zczy-k/ai-nav-item/pkg/batch"
)

// throttlePhrases are provider messages that mean throttling even when the
// status code is not 429 (some gateways return 503 or 200-with-error for
// quota exhaustion).
var throttlePhrases = []string{
	"rate limit",
	"too many requests",
	"quota",
	"resource exhausted",
	"resource_exhausted",
	"overloaded",
}

// Classify maps a provider failure to the batch engine's tagged outcome.
// It is the Classifier injected into every enrichment task.
func Classify(err error) batch.Outcome {
	if err == nil {
		return batch.OutcomeOK
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		if perr.StatusCode == http.StatusTooManyRequests {
			return batch.OutcomeRateLimited
		}
		if containsThrottlePhrase(perr.Message) {
			return batch.OutcomeRateLimited
		}
		return batch.OutcomeError
	}

	if containsThrottlePhrase(err.Error()) {
		return batch.OutcomeRateLimited
	}
	return batch.OutcomeError
}

func containsThrottlePhrase(msg string) bool {
	lower := strings.ToLower(msg)
	for _, phrase := range throttlePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
