package notification

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/theblitlabs/zemog-worker/internal/core/config"
	"github.com/theblitlabs/zemog-worker/internal/core/models"
	"github.com/theblitlabs/zemog-worker/internal/utils/errorutil"
	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

// Dispatcher fans a failed run out to the channels enabled for each of the
// task's notification codes.
type Dispatcher struct {
	channels map[string][]Channel
}

// NewDispatcher builds and validates every enabled channel up front. A
// Clickatell token given as a secret reference is resolved through secrets,
// which may be nil when no channel needs it.
func NewDispatcher(ctx context.Context, cfg *config.Config, secrets SecretsAPI) (*Dispatcher, error) {
	d := &Dispatcher{channels: make(map[string][]Channel)}

	codes := make([]string, 0, len(cfg.Notifications))
	for code := range cfg.Notifications {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		n, _ := cfg.Notification(code)

		if n.VictorOps != nil && n.VictorOps.IsEnabled {
			ch, err := NewVictorOps(*n.VictorOps, cfg.AWS)
			if err != nil {
				return nil, fmt.Errorf("notifications.%s: %w", code, err)
			}
			d.Register(code, ch)
		}

		if n.Clickatell != nil && n.Clickatell.IsEnabled {
			cc := *n.Clickatell
			if cc.AuthorizationToken == "" && cc.AuthorizationTokenSecret != "" {
				if secrets == nil {
					return nil, errorutil.Newf(errorutil.KindConfigurationParse,
						"notifications.%s: clickatell token secret set but no secrets client available", code)
				}
				token, err := ResolveSecret(ctx, secrets, cc.AuthorizationTokenSecret)
				if err != nil {
					return nil, errorutil.Wrap(errorutil.KindConfigurationParse, err,
						fmt.Sprintf("notifications.%s", code))
				}
				cc.AuthorizationToken = token
			}

			ch, err := NewClickatell(cc, cfg.AWS)
			if err != nil {
				return nil, fmt.Errorf("notifications.%s: %w", code, err)
			}
			d.Register(code, ch)
		}
	}

	return d, nil
}

func (d *Dispatcher) Register(code string, ch Channel) {
	code = strings.ToLower(code)
	d.channels[code] = append(d.channels[code], ch)
}

// Notify sends the event on every matching channel and waits for all of them.
// Failures are logged and never returned.
func (d *Dispatcher) Notify(ctx context.Context, task *models.Task, locator string) {
	log := logger.WithComponent("notification")

	if locator == "" || !task.WantsNotifications() {
		return
	}

	ev := Event{AppName: task.AppName(), TestName: task.Test, Locator: locator}

	p := pool.New().WithContext(ctx)
	for _, code := range task.Notifications {
		channels, ok := d.channels[strings.ToLower(code)]
		if !ok {
			log.Debug().Str("code", code).Msg("No enabled channels for notification code")
			continue
		}
		for _, ch := range channels {
			ch, code := ch, code
			p.Go(func(ctx context.Context) error {
				log.Debug().Str("code", code).Str("channel", ch.Name()).Msg("Sending notification for failed test result")
				if err := ch.Send(ctx, ev); err != nil {
					log.Warn().Err(err).Str("code", code).Str("channel", ch.Name()).Msg("Notification not delivered")
					return nil
				}
				log.Debug().Str("code", code).Str("channel", ch.Name()).Msg("Notification delivered")
				return nil
			})
		}
	}
	p.Wait()
}
