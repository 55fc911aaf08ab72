package signflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// honeypotFields are decoy inputs rendered into the details form. Humans
// never fill them; autofill bots do.
var honeypotFields = []string{"first-name", "last-name"}

// honeypotTripped reports whether any decoy field arrived with a non-empty
// value.
func honeypotTripped(details map[string]any) bool {
	for _, key := range honeypotFields {
		v, ok := details[key]
		if !ok {
			continue
		}
		if s, isStr := v.(string); !isStr || strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

const siteverifyURL = "https://www.google.com/recaptcha/api/siteverify"

// Verifier gates job submissions behind a reCAPTCHA score check. An empty
// secret disables the gate entirely.
type Verifier struct {
	Secret   string
	MinScore float64

	// Client defaults to a short-timeout client; URL defaults to Google's
	// siteverify endpoint and is overridable in tests.
	Client *http.Client
	URL    string
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify checks the client token against the verification service. It fails
// closed: an unreachable verifier rejects the submission.
func (v *Verifier) Verify(ctx context.Context, token string) error {
	if v.Secret == "" {
		return nil
	}
	if token == "" {
		return fmt.Errorf("missing verification token")
	}

	endpoint := v.URL
	if endpoint == "" {
		endpoint = siteverifyURL
	}
	client := v.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	form := url.Values{"secret": {v.Secret}, "response": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("verification request failed: %w", err)
	}
	defer resp.Body.Close()

	var result siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode verification response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("verification rejected: %s", strings.Join(result.ErrorCodes, ", "))
	}
	if result.Score < v.MinScore {
		return fmt.Errorf("verification score %.2f below threshold %.2f", result.Score, v.MinScore)
	}
	return nil
}
