package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/livesync/backend/internal/clock"
	"github.com/livesync/backend/internal/session"
)

// HTTPError is returned when the collector answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("collector responded %d", e.StatusCode)
	}
	return fmt.Sprintf("collector responded %d: %s", e.StatusCode, e.Body)
}

// HTTPSink POSTs one envelope per event to a collector URL.
type HTTPSink struct {
	URL      string
	Token    string
	Codec    Codec
	Identity Identity
	Client   *http.Client
	Clock    clock.Clock
}

// NewHTTPSink returns a sink posting JSON with the given request timeout.
func NewHTTPSink(url, token string, timeout time.Duration, ident Identity) *HTTPSink {
	return &HTTPSink{
		URL:      url,
		Token:    token,
		Codec:    CodecJSON,
		Identity: ident,
		Client:   &http.Client{Timeout: timeout},
		Clock:    clock.Real(),
	}
}

func (s *HTTPSink) Report(ctx context.Context, event string, props session.Properties) error {
	body, err := s.Codec.Encode(NewEnvelope(event, props, s.Identity, s.now()))
	if err != nil {
		return fmt.Errorf("encoding %s: %w", event, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", s.Codec.ContentType())
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting %s: %w", event, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *HTTPSink) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}
