package vision

import "errors"

// ErrResourceUnavailable indicates the capture bytes could not be loaded
// (missing file / object). Not retryable: the resource will not appear on
// its own.
var ErrResourceUnavailable = errors.New("capture resource unavailable")

// ErrMalformedResponse indicates the model reply contained no parseable
// JSON object at all. Field-level gaps are defaulted, not errored.
var ErrMalformedResponse = errors.New("no JSON object in model response")

// ErrEmptyResponse indicates the model returned no content.
var ErrEmptyResponse = errors.New("empty response from vision model")

// ErrQuotaExceeded indicates the provider returned a quota/limit error
// (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("vision quota exceeded")
