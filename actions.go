package signflow

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// actionPause returns the settle delay that follows every page action,
// roughly 1.0-1.5s. The jitter emulates human pacing and gives page scripts
// time to react. Overridable in tests.
var actionPause = func() time.Duration {
	return time.Duration(1001+rand.IntN(504)) * time.Millisecond
}

// runActions executes actions in order, pausing after each one. The first
// failing action aborts the rest.
func runActions(ctx context.Context, sess Session, actions []Action) error {
	for _, a := range actions {
		loc := Locator{Selector: a.Selector}
		var err error
		switch a.Kind {
		case ActionScrollTo:
			err = sess.ScrollTo(ctx, loc)
		case ActionClick:
			err = sess.Click(ctx, loc)
		default:
			// iframe entry included: catalogs may declare it, but there is
			// no cross-frame implementation to run.
			err = fmt.Errorf("unsupported action: %s", a.Kind)
		}
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(actionPause()):
		}
	}
	return nil
}
