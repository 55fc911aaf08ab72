package signflow

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// JobStatus enumerates the possible states of a signing job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobError      JobStatus = "error"
)

// Terminal reports whether the status is final. A terminal job never changes
// status again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobError
}

// ProgressEvent is one immutable record in a job's event history. The wire
// shape is exactly what observers receive over the status stream.
type ProgressEvent struct {
	Message  string  `json:"message"`
	Progress float64 `json:"progress"`
	Error    bool    `json:"error"`
	Title    string  `json:"title"`
}

// Job is one end-to-end request to auto-sign a set of webpages. Status is
// mutated only by the owning Signer; observers read it through Status().
type Job struct {
	ID        string
	StartedAt time.Time

	hub *Hub

	mu     sync.Mutex
	status JobStatus
}

// Status returns the job's current lifecycle state.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) setStatus(s JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = s
}

// Hub returns the job's event log and broadcast hub.
func (j *Job) Hub() *Hub {
	return j.hub
}

// publish appends one event to the job's history and fans it out to every
// attached observer.
func (j *Job) publish(message string, progress float64, isErr bool, title string) {
	j.hub.Publish(ProgressEvent{
		Message:  message,
		Progress: progress,
		Error:    isErr,
		Title:    title,
	})
}

// AutoNone marks a webpage that must be completed manually; automation skips
// it and reports it unsigned.
const AutoNone = "none"

// WebpageTask is one external form to be filled and submitted.
type WebpageTask struct {
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Auto    string   `json:"auto,omitempty"`
	Actions []Action `json:"actions,omitempty"`
	Fields  []Field  `json:"fields,omitempty"`
	Submit  string   `json:"submit"`
}

// ActionKind names one pre-submission page interaction.
type ActionKind string

const (
	ActionScrollTo ActionKind = "scrollTo"
	ActionClick    ActionKind = "click"

	// ActionIframe appears in some catalog entries but cross-frame filling
	// has no implementation; the runner refuses it instead of skipping it.
	ActionIframe ActionKind = "iframe"
)

// Action is a single {selector: kind} pair, serialized exactly that way in
// catalog data.
type Action struct {
	Selector string
	Kind     ActionKind
}

func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{a.Selector: string(a.Kind)})
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("action must be a single {selector: kind} pair, got %d entries", len(raw))
	}
	for sel, kind := range raw {
		a.Selector = sel
		a.Kind = ActionKind(kind)
	}
	return nil
}

// FieldKind is the typed filling strategy of a form field.
type FieldKind string

const (
	FieldText     FieldKind = "text"
	FieldTextArea FieldKind = "textarea"
	FieldURL      FieldKind = "url"
	FieldCheckbox FieldKind = "checkbox"
	FieldChoice   FieldKind = "choice"
)

// ControlKind disambiguates how a choice field is rendered on the page.
type ControlKind string

const (
	ControlSelect ControlKind = "select"
	ControlRadio  ControlKind = "radio"
)

// Field is one input control on a webpage. Catalog data encodes the kind in
// a polymorphic "inputType" key: a kind name for simple inputs, or the list
// of allowed option values for a choice field.
type Field struct {
	ID   string
	Kind FieldKind

	// Options holds the allowed values of a choice field.
	Options []string

	// Control says whether a choice field is a <select> or a radio group.
	// Legacy catalog entries omit it; see UnmarshalJSON for the fallback.
	Control ControlKind

	Selector      string
	SelectorIndex *int
	Required      bool

	// SubActions run immediately after the field is set; some pages reveal
	// dependent fields only on change.
	SubActions []Action
}

// Locator returns the field's element address.
func (f Field) Locator() Locator {
	return Locator{Selector: f.Selector, Index: f.SelectorIndex}
}

type fieldJSON struct {
	ID            string          `json:"id"`
	InputType     json.RawMessage `json:"inputType"`
	Control       ControlKind     `json:"control,omitempty"`
	Selector      string          `json:"querySelector"`
	SelectorIndex *int            `json:"querySelectorAllIndex,omitempty"`
	Required      bool            `json:"required,omitempty"`
	SubActions    []Action        `json:"subActions,omitempty"`
}

func (f Field) MarshalJSON() ([]byte, error) {
	raw := fieldJSON{
		ID:            f.ID,
		Control:       f.Control,
		Selector:      f.Selector,
		SelectorIndex: f.SelectorIndex,
		Required:      f.Required,
		SubActions:    f.SubActions,
	}
	var err error
	if f.Kind == FieldChoice {
		raw.InputType, err = json.Marshal(f.Options)
	} else {
		raw.InputType, err = json.Marshal(string(f.Kind))
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

func (f *Field) UnmarshalJSON(data []byte) error {
	var raw fieldJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.ID = raw.ID
	f.Selector = raw.Selector
	f.SelectorIndex = raw.SelectorIndex
	f.Required = raw.Required
	f.SubActions = raw.SubActions

	trimmed := strings.TrimSpace(string(raw.InputType))
	switch {
	case trimmed == "" || trimmed == "null":
		return fmt.Errorf("field %q: missing inputType", raw.ID)
	case trimmed[0] == '[':
		// An array of values means "choice".
		var opts []string
		if err := json.Unmarshal(raw.InputType, &opts); err != nil {
			return fmt.Errorf("field %q: invalid options: %w", raw.ID, err)
		}
		f.Kind = FieldChoice
		f.Options = opts
		f.Control = raw.Control
		if f.Control == "" {
			// Legacy entries don't say which control renders the choice;
			// the selector text is the only hint left.
			f.Control = ControlRadio
			if strings.Contains(raw.Selector, "select") {
				f.Control = ControlSelect
			}
		}
	default:
		var kind string
		if err := json.Unmarshal(raw.InputType, &kind); err != nil {
			return fmt.Errorf("field %q: invalid inputType: %w", raw.ID, err)
		}
		switch FieldKind(kind) {
		case FieldText, FieldTextArea, FieldURL, FieldCheckbox:
			f.Kind = FieldKind(kind)
		default:
			return fmt.Errorf("field %q: unknown inputType %q", raw.ID, kind)
		}
	}
	return nil
}

// SignRequest is one job submission: the titles to sign, the user's details
// keyed by field id, and the catalog entity to load.
type SignRequest struct {
	Selected []string       `json:"selected"`
	Details  map[string]any `json:"details"`
	Entity   string         `json:"entity"`

	// Token is the client's reCAPTCHA response, verified before processing
	// when a secret is configured.
	Token string `json:"token,omitempty"`
}
