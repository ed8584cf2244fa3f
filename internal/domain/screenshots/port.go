package screenshots

import (
	"context"
	"errors"
	"time"

	"github.com/focusmon/screenwatch/internal/domain/vision"
)

// ErrNotFound is returned when a screenshot id has no row (e.g. the item was
// deleted between enqueue and processing).
var ErrNotFound = errors.New("screenshot not found")

// Repository port (interface untuk persistence)
//
// MarkCompleted and MarkFailed only match rows still in `processing`; they
// return ErrNotFound when the guard matches nothing so a stale worker write
// cannot clobber a concurrent reset.
type Repository interface {
	Get(ctx context.Context, id ScreenshotID) (*Screenshot, error)
	SetProcessing(ctx context.Context, id ScreenshotID) error
	MarkCompleted(ctx context.Context, id ScreenshotID, a *vision.Annotation, at time.Time) error
	MarkFailed(ctx context.Context, id ScreenshotID, reason string, at time.Time) error
	Reset(ctx context.Context, id ScreenshotID) error
	ListPending(ctx context.Context, before time.Time, limit int) ([]*Screenshot, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
