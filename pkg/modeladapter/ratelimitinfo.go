package modeladapter

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitInfo is the provider's view of the remaining quota, as reported in
// the headers of its latest response.
type RateLimitInfo struct {
	RemainingRequests int
	RemainingTokens   int
	RequestsReset     time.Time
	TokensReset       time.Time
}

// RateLimitInfoReporter is implemented by completers that remember the quota
// headers of their latest response. Completers that embed ModelAdapter
// implement it automatically.
type RateLimitInfoReporter interface {
	LastRateLimitInfo() *RateLimitInfo
}

// RateLimitHeaderParser extracts quota information from response headers, or
// returns nil when the headers carry none. now anchors relative reset values.
type RateLimitHeaderParser func(h http.Header, now time.Time) *RateLimitInfo

// rateLimitHeaders names the four headers a provider uses for its quota.
type rateLimitHeaders struct {
	remainingRequests string
	remainingTokens   string
	requestsReset     string
	tokensReset       string
}

func (n rateLimitHeaders) parse(h http.Header, now time.Time) *RateLimitInfo {
	reqLeft, tokLeft := h.Get(n.remainingRequests), h.Get(n.remainingTokens)
	if reqLeft == "" && tokLeft == "" {
		return nil
	}

	info := &RateLimitInfo{
		RequestsReset: parseResetTime(h.Get(n.requestsReset), now),
		TokensReset:   parseResetTime(h.Get(n.tokensReset), now),
	}
	if v, err := strconv.Atoi(reqLeft); err == nil {
		info.RemainingRequests = v
	}
	if v, err := strconv.Atoi(tokLeft); err == nil {
		info.RemainingTokens = v
	}

	return info
}

// ParseAnthropicRateLimitHeaders reads the anthropic-ratelimit-* headers.
func ParseAnthropicRateLimitHeaders(h http.Header, now time.Time) *RateLimitInfo {
	return rateLimitHeaders{
		remainingRequests: "anthropic-ratelimit-requests-remaining",
		remainingTokens:   "anthropic-ratelimit-tokens-remaining",
		requestsReset:     "anthropic-ratelimit-requests-reset",
		tokensReset:       "anthropic-ratelimit-tokens-reset",
	}.parse(h, now)
}

// ParseOpenAIRateLimitHeaders reads the x-ratelimit-* headers used by OpenAI
// and by compatible APIs such as xAI.
func ParseOpenAIRateLimitHeaders(h http.Header, now time.Time) *RateLimitInfo {
	return rateLimitHeaders{
		remainingRequests: "x-ratelimit-remaining-requests",
		remainingTokens:   "x-ratelimit-remaining-tokens",
		requestsReset:     "x-ratelimit-reset-requests",
		tokensReset:       "x-ratelimit-reset-tokens",
	}.parse(h, now)
}

// parseResetTime accepts an RFC 3339 timestamp or a Go duration such as "6s"
// or "1m30s" counted from now. Anything else yields the zero time.
func parseResetTime(val string, now time.Time) time.Time {
	if val == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t
	}
	if d, err := time.ParseDuration(val); err == nil {
		return now.Add(d)
	}
	return time.Time{}
}
