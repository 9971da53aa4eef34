package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/theblitlabs/zemog-worker/internal/core/config"
	"github.com/theblitlabs/zemog-worker/internal/utils/errorutil"
)

const (
	DefaultClickatellURL  = "https://api.clickatell.com/rest/message"
	defaultClickatellFrom = "Zemog Worker"
)

type clickatellPayload struct {
	From string   `json:"from"`
	To   []string `json:"to"`
	Text string   `json:"text"`
}

type Clickatell struct {
	cfg    config.ClickatellConfig
	bucket string
	client *http.Client
}

// NewClickatell expects cfg.AuthorizationToken to be resolved already.
func NewClickatell(cfg config.ClickatellConfig, aws config.AWSConfig) (*Clickatell, error) {
	if cfg.AuthorizationToken == "" {
		return nil, errorutil.New(errorutil.KindConfigurationParse,
			"clickatell.authorizationToken (string) config property is required")
	}
	if len(cfg.Recipients) == 0 {
		return nil, errorutil.New(errorutil.KindConfigurationParse,
			"clickatell.recipients (array<string>) config property is required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultClickatellURL
	}
	if cfg.From == "" {
		cfg.From = defaultClickatellFrom
	}

	return &Clickatell{
		cfg:    cfg,
		bucket: aws.TestResultPath.Bucket,
		client: httpClient(cfg.Timeout),
	}, nil
}

func (c *Clickatell) Name() string {
	return "clickatell"
}

func (c *Clickatell) Send(ctx context.Context, ev Event) error {
	link := "s3://" + c.bucket + "/" + ev.Locator
	body := clickatellPayload{
		From: c.cfg.From,
		To:   c.cfg.Recipients,
		Text: "Zemog: " + stateMessage(ev, link),
	}
	headers := map[string]string{
		"Authorization": "Bearer " + c.cfg.AuthorizationToken,
		"Accept":        "application/json",
		"X-Version":     "1",
	}

	status, err := postJSON(ctx, c.client, c.cfg.URL, headers, body)
	if err != nil {
		return fmt.Errorf("can't send notification to Clickatell: %w", err)
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("can't send notification to Clickatell: unexpected status %d", status)
	}
	return nil
}
