package signflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// settlePause is the wait after navigation before touching the page,
// matching the action pacing. Overridable in tests.
var settlePause = func() time.Duration {
	return actionPause()
}

// signWebpage makes one attempt at one webpage and always resolves to
// published events: "success", or "failure" plus a detailed error-flagged
// event. Nothing, panics included, escapes this boundary.
func (s *Signer) signWebpage(ctx context.Context, job *Job, sess Session, task WebpageTask, details map[string]any, progress float64) {
	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic signing %s: %v", task.Title, rec)
			}
		}()
		err = s.trySign(ctx, sess, task, details)
	}()

	if err == nil {
		job.publish("success", progress, false, task.Title)
		return
	}
	s.captureFailure(ctx, job, sess, task)
	job.publish("failure", progress, false, task.Title)
	job.publish(fmt.Sprintf("failure: %v", err), progress, true, task.Title)
}

// trySign is the ordered pipeline for one webpage: navigate, run the page's
// pre-submission actions, fill every field in declaration order, then check
// for the submit control.
func (s *Signer) trySign(ctx context.Context, sess Session, task WebpageTask, details map[string]any) error {
	if err := sess.Navigate(ctx, task.URL); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(settlePause()):
	}

	if err := runActions(ctx, sess, task.Actions); err != nil {
		return err
	}

	for _, f := range task.Fields {
		if err := dispatchField(ctx, sess, f, details); err != nil {
			return err
		}
	}

	// Presence of the submit control is all the verification the flow has
	// today. A real post-submit outcome check needs a per-page success
	// indicator the catalogs don't carry yet.
	ok, err := sess.Exists(ctx, Locator{Selector: task.Submit})
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("submission failed: submit control not found")
	}
	return nil
}

// captureFailure writes a screenshot artifact for a failed webpage. Failing
// to capture is logged, never escalated; the signing outcome stands on its
// own.
func (s *Signer) captureFailure(ctx context.Context, job *Job, sess Session, task WebpageTask) {
	img, err := sess.Screenshot(ctx)
	if err != nil {
		s.cfg.logError(LogEvent{Message: "screenshot capture failed", JobID: job.ID, Title: task.Title, Err: err})
		return
	}
	if err := os.MkdirAll(s.cfg.ScreenshotDir, 0o755); err != nil {
		s.cfg.logError(LogEvent{Message: "screenshot dir unavailable", JobID: job.ID, Title: task.Title, Err: err})
		return
	}
	name := fmt.Sprintf("%s-%s.png", job.ID, strings.Join(strings.Fields(task.Title), "_"))
	if err := os.WriteFile(filepath.Join(s.cfg.ScreenshotDir, name), img, 0o644); err != nil {
		s.cfg.logError(LogEvent{Message: "screenshot write failed", JobID: job.ID, Title: task.Title, Err: err})
	}
}
