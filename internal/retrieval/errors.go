package retrieval

import (
	"context"
	"errors"
	"strings"

	"github.com/timmy/vidledger/internal/domain"
)

var (
	notFoundMarkers = []string{
		"http error 404", "video unavailable", "is not available", "does not exist",
		"unable to find video", "private video", "this video has been removed", "unsupported url",
	}
	rateLimitMarkers = []string{
		"http error 429", "too many requests", "rate limit", "rate-limit",
	}
	timeoutMarkers = []string{
		"timed out", "timeout", "connection reset", "temporary failure in name resolution",
		"unable to download webpage", "connection refused", "network is unreachable",
	}
)

// classify maps a failed yt-dlp invocation to a RetrievalError.
func classify(id string, err error, stderr []byte) *domain.RetrievalError {
	reason := domain.ReasonOther
	text := strings.ToLower(string(stderr) + " " + err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = domain.ReasonNetworkTimeout
	case containsAny(text, notFoundMarkers):
		reason = domain.ReasonNotFound
	case containsAny(text, rateLimitMarkers):
		reason = domain.ReasonRateLimited
	case containsAny(text, timeoutMarkers):
		reason = domain.ReasonNetworkTimeout
	}
	return &domain.RetrievalError{Identifier: id, Reason: reason, Err: err}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
