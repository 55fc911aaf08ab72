package signflow

import (
	"context"
	"fmt"
	"time"
)

// Locator addresses one or more elements on a page: a selector, optionally
// narrowed to the Nth match when several elements share it.
type Locator struct {
	Selector string
	Index    *int
}

func (l Locator) String() string {
	if l.Index != nil {
		return fmt.Sprintf("%s[%d]", l.Selector, *l.Index)
	}
	return l.Selector
}

// Browser opens automation sessions. One session maps to one page/tab and
// is reused for every webpage in a job; pages are visited sequentially.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is the browser-control contract the signing pipeline consumes.
// Implementations resolve locators for both the unique and the Nth-match
// case; index-out-of-bounds must surface as an error, not a silent miss.
type Session interface {
	// Navigate loads url and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// Click clicks the located element.
	Click(ctx context.Context, loc Locator) error

	// Type sends text into the located element, pausing roughly delay
	// between characters.
	Type(ctx context.Context, loc Locator, text string, delay time.Duration) error

	// Checked reports the located checkbox's current state.
	Checked(ctx context.Context, loc Locator) (bool, error)

	// SelectValue sets a <select>'s value and raises a change event so page
	// scripts react as they would to a human pick.
	SelectValue(ctx context.Context, loc Locator, value string) error

	// ClickRadio clicks the radio in the group addressed by loc whose
	// control value matches value, scanning forward from loc.Index when the
	// selector is shared.
	ClickRadio(ctx context.Context, loc Locator, value string) error

	// ScrollTo smooth-scrolls the located element into view.
	ScrollTo(ctx context.Context, loc Locator) error

	// Exists reports whether loc matches at least one element.
	Exists(ctx context.Context, loc Locator) (bool, error)

	// Screenshot captures the current page as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close releases the session and its browser resources.
	Close(ctx context.Context) error
}
