package assistant

import "errors"

// ErrQuotaExceeded indicates the assistant provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("assistant quota exceeded")
