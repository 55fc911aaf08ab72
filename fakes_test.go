package signflow

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	// Strip the human pacing out of tests.
	actionPause = func() time.Duration { return 0 }
	settlePause = func() time.Duration { return 0 }
	typeDelay = func() time.Duration { return 0 }
	os.Exit(m.Run())
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		CORSOrigin:     "*",
		ScreenshotDir:  t.TempDir(),
		WebpageTimeout: 5 * time.Second,
		EvictDelay:     25 * time.Millisecond,
		InfoLog:        func(LogEvent) {},
		ErrorLog:       func(LogEvent) {},
	}
}

func intPtr(i int) *int { return &i }

type fakeOp struct {
	Kind  string
	Loc   string
	Value string
}

// fakeSession records every browser-contract call and answers from canned
// state. It stands in for the chromedp session at the Session interface.
type fakeSession struct {
	mu      sync.Mutex
	ops     []fakeOp
	checked map[string]bool

	navigateErr   error
	navigateBlock chan struct{}
	submitMissing bool
	closed        bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{checked: make(map[string]bool)}
}

func (f *fakeSession) record(kind string, loc Locator, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, fakeOp{Kind: kind, Loc: loc.String(), Value: value})
}

func (f *fakeSession) Ops() []fakeOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeOp, len(f.ops))
	copy(out, f.ops)
	return out
}

func (f *fakeSession) countOps(kind string) int {
	n := 0
	for _, op := range f.Ops() {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	if f.navigateBlock != nil {
		select {
		case <-f.navigateBlock:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.record("navigate", Locator{Selector: url}, "")
	return f.navigateErr
}

func (f *fakeSession) Click(ctx context.Context, loc Locator) error {
	f.record("click", loc, "")
	return nil
}

func (f *fakeSession) Type(ctx context.Context, loc Locator, text string, delay time.Duration) error {
	f.record("type", loc, text)
	return nil
}

func (f *fakeSession) Checked(ctx context.Context, loc Locator) (bool, error) {
	f.record("checked", loc, "")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checked[loc.String()], nil
}

func (f *fakeSession) SelectValue(ctx context.Context, loc Locator, value string) error {
	f.record("select", loc, value)
	return nil
}

func (f *fakeSession) ClickRadio(ctx context.Context, loc Locator, value string) error {
	f.record("radio", loc, value)
	return nil
}

func (f *fakeSession) ScrollTo(ctx context.Context, loc Locator) error {
	f.record("scroll", loc, "")
	return nil
}

func (f *fakeSession) Exists(ctx context.Context, loc Locator) (bool, error) {
	f.record("exists", loc, "")
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.submitMissing, nil
}

func (f *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	f.record("screenshot", Locator{}, "")
	return []byte("png"), nil
}

func (f *fakeSession) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeBrowser struct {
	mu     sync.Mutex
	sess   *fakeSession
	err    error
	opened int
}

func (b *fakeBrowser) NewSession(ctx context.Context) (Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened++
	if b.err != nil {
		return nil, b.err
	}
	if b.sess == nil {
		b.sess = newFakeSession()
	}
	return b.sess, nil
}

type fakeCatalog struct {
	webpages map[string][]WebpageTask
	err      error
}

func (c *fakeCatalog) Webpages(ctx context.Context, entity string) ([]WebpageTask, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.webpages[entity], nil
}
