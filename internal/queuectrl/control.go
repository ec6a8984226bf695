// Package queuectrl exposes the operator-controlled pause flag consulted
// before every claim. The dispatch path only reads the flag; writes come from
// the operator API.
package queuectrl

import "context"

type Control interface {
	IsPaused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, paused bool) error
}
