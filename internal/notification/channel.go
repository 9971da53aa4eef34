package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultTimeout = 5 * time.Minute
	monitoringTool = "Zemog Worker"
)

// Event is a failed test run that stakeholders should hear about.
type Event struct {
	AppName  string
	TestName string
	// Locator is the key namespace of the uploaded results.
	Locator string
}

// Channel delivers an event to one external service.
type Channel interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

func stateMessage(ev Event, link string) string {
	return fmt.Sprintf("Iridium Test failed - %s - %s - %s", ev.AppName, ev.TestName, link)
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
