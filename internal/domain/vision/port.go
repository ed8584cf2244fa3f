package vision

import "context"

// Analyzer port (interface untuk vision model call)
type Analyzer interface {
	Analyze(ctx context.Context, locator string) (*Annotation, error)
	CheckHealth(ctx context.Context) error
}

// ImageSource port resolves an opaque locator to the capture bytes.
type ImageSource interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}
