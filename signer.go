package signflow

import (
	"context"
	"fmt"
	"time"
)

// Signer is the job state machine. It drives one job from pending to a
// terminal state: validate, load the catalog, open one browser session, and
// walk the selected webpages strictly in order under per-webpage deadlines.
type Signer struct {
	cfg      *Config
	catalog  CatalogSource
	browser  Browser
	verifier *Verifier
}

func NewSigner(cfg *Config, catalog CatalogSource, browser Browser) *Signer {
	return &Signer{
		cfg:     cfg,
		catalog: catalog,
		browser: browser,
		verifier: &Verifier{
			Secret:   cfg.RecaptchaSecret,
			MinScore: cfg.RecaptchaMinScore,
		},
	}
}

// Run processes the job to completion. It is the only mutator of the job's
// status and the only publisher of its events. Validation failures produce
// exactly one error event without ever opening a browser session.
func (s *Signer) Run(ctx context.Context, job *Job, req SignRequest) {
	start := time.Now()

	if msg, ok := s.validate(ctx, req); !ok {
		job.publish(msg, 0, true, "")
		job.setStatus(JobError)
		return
	}

	tasks, err := s.selectWebpages(ctx, req)
	if err != nil {
		s.cfg.logError(LogEvent{Message: "catalog load failed", JobID: job.ID, Err: err})
		job.publish(fmt.Sprintf("Error loading webpage catalog: %v", err), 0, true, "")
		job.setStatus(JobError)
		return
	}
	if len(tasks) == 0 {
		job.publish("No matching webpages found", 0, true, "")
		job.setStatus(JobError)
		return
	}

	job.setStatus(JobProcessing)

	sess, err := s.browser.NewSession(ctx)
	if err != nil {
		job.publish(fmt.Sprintf("Error: %v", err), 0, true, "")
		job.setStatus(JobError)
		return
	}
	defer func() {
		// The session is released no matter how the job ends.
		if err := sess.Close(context.Background()); err != nil {
			s.cfg.logError(LogEvent{Message: "browser session close failed", JobID: job.ID, Err: err})
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			job.publish(fmt.Sprintf("Error: %v", rec), 0, true, "")
			job.setStatus(JobError)
		}
	}()

	n := len(tasks)
	for i, task := range tasks {
		job.publish("processing", pct(i, n), false, task.Title)

		if task.Auto == AutoNone {
			// Needs a human; report it unsigned and move on without ever
			// touching the browser.
			job.publish("failure", pct(i+1, n), false, task.Title)
			continue
		}

		if !s.runStep(ctx, job, sess, task, req.Details, pct(i+1, n)) {
			job.publish("failure", pct(i+1, n), false, task.Title)
		}
	}

	job.publish("complete", 100, false, "Signing is complete")
	job.setStatus(JobCompleted)

	elapsed := time.Since(start)
	s.cfg.logInfo(LogEvent{Message: "job completed", JobID: job.ID, Duration: &elapsed})
}

// runStep races one signing attempt against the per-webpage deadline and
// reports false on timeout. The losing attempt is abandoned, not cancelled:
// browser operations already in flight may still land after the job has
// moved on, which is accepted.
func (s *Signer) runStep(ctx context.Context, job *Job, sess Session, task WebpageTask, details map[string]any, progress float64) bool {
	if s.cfg.WebpageTimeout <= 0 {
		s.signWebpage(ctx, job, sess, task, details, progress)
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.signWebpage(ctx, job, sess, task, details, progress)
	}()

	select {
	case <-done:
		return true
	case <-time.After(s.cfg.WebpageTimeout):
		s.cfg.logError(LogEvent{Message: "webpage timed out", JobID: job.ID, Title: task.Title})
		return false
	}
}

// validate runs the pre-processing gates: structural input checks, the
// honeypot, and the external verification check. It returns the single
// user-visible message on failure.
func (s *Signer) validate(ctx context.Context, req SignRequest) (string, bool) {
	if len(req.Selected) == 0 || req.Details == nil {
		return "Invalid input: selected array and details object required", false
	}
	if honeypotTripped(req.Details) {
		return "Invalid input: automated submission rejected", false
	}
	if err := s.verifier.Verify(ctx, req.Token); err != nil {
		s.cfg.logError(LogEvent{Message: "verification failed", Err: err})
		return "Verification failed", false
	}
	return "", true
}

// selectWebpages loads the entity's catalog and keeps the selected titles,
// in the order the caller listed them. Titles with no catalog entry are
// dropped silently, matching retry submissions that narrow the selection.
func (s *Signer) selectWebpages(ctx context.Context, req SignRequest) ([]WebpageTask, error) {
	all, err := s.catalog.Webpages(ctx, req.Entity)
	if err != nil {
		return nil, err
	}
	byTitle := make(map[string]WebpageTask, len(all))
	for _, t := range all {
		byTitle[t.Title] = t
	}
	var tasks []WebpageTask
	for _, title := range req.Selected {
		if t, ok := byTitle[title]; ok {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func pct(i, n int) float64 {
	return float64(i) / float64(n) * 100
}
