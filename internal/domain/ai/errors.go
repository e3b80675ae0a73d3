package ai

import "errors"

// ErrQuotaExceeded indicates the LLM provider rejected the call with HTTP 429.
// Stage calls treat it like any other failed attempt and retry.
var ErrQuotaExceeded = errors.New("ai quota exceeded")
