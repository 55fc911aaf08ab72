package signflow

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"
)

// typeDelay returns the per-character pause for typed input, 100-200ms, so
// filled text resembles human typing. Overridable in tests.
var typeDelay = func() time.Duration {
	return time.Duration(100+rand.IntN(100)) * time.Millisecond
}

// dispatchField applies one field's typed filling strategy against the
// user's details. A value that is absent from the map is a no-op (distinct
// from an empty string or false, which are real values) unless the field is
// required. After the field is set, its subActions run before the caller
// moves on, so dependent fields revealed by the change are ready.
func dispatchField(ctx context.Context, sess Session, f Field, details map[string]any) error {
	value, ok := details[f.ID]
	if !ok {
		if f.Required {
			return fmt.Errorf("missing required field: %s", f.ID)
		}
		return nil
	}

	loc := f.Locator()
	var err error
	switch f.Kind {
	case FieldText, FieldTextArea, FieldURL:
		err = sess.Type(ctx, loc, fmt.Sprint(value), typeDelay())
	case FieldCheckbox:
		err = setCheckbox(ctx, sess, loc, truthy(value))
	case FieldChoice:
		err = setChoice(ctx, sess, f, loc, fmt.Sprint(value))
	default:
		err = fmt.Errorf("field %s: unknown kind %q", f.ID, f.Kind)
	}
	if err != nil {
		return err
	}
	return runActions(ctx, sess, f.SubActions)
}

// truthy accepts the two encodings the details map carries for a checked
// state: a real boolean or the string "true".
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	}
	return false
}

// setCheckbox toggles the checkbox only when its current state differs from
// the desired one; a click on an already-correct box would undo it.
func setCheckbox(ctx context.Context, sess Session, loc Locator, want bool) error {
	checked, err := sess.Checked(ctx, loc)
	if err != nil {
		return err
	}
	if checked == want {
		return nil
	}
	return sess.Click(ctx, loc)
}

func setChoice(ctx context.Context, sess Session, f Field, loc Locator, value string) error {
	switch f.Control {
	case ControlSelect:
		if !slices.Contains(f.Options, value) {
			return fmt.Errorf("invalid option for %s: %s", f.ID, value)
		}
		return sess.SelectValue(ctx, loc, value)
	default:
		// Radio groups carry literal "true"/"false" values behind the
		// semantic Yes/No the form shows.
		radio := value
		switch value {
		case "Yes":
			radio = "true"
		case "No":
			radio = "false"
		}
		return sess.ClickRadio(ctx, loc, radio)
	}
}
