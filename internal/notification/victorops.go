package notification

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/theblitlabs/zemog-worker/internal/core/config"
	"github.com/theblitlabs/zemog-worker/internal/utils/errorutil"
)

type victorOpsPayload struct {
	MessageType    string `json:"message_type"`
	EntityID       string `json:"entity_id"`
	StateMessage   string `json:"state_message"`
	MonitoringTool string `json:"monitoring_tool"`
}

type VictorOps struct {
	cfg    config.VictorOpsConfig
	region string
	bucket string
	client *http.Client
	now    func() time.Time
}

func NewVictorOps(cfg config.VictorOpsConfig, aws config.AWSConfig) (*VictorOps, error) {
	if cfg.URL == "" {
		return nil, errorutil.New(errorutil.KindConfigurationParse, "victorOps.url (string) config property is required")
	}

	region := aws.Region
	if region == "" {
		region = "ap-southeast-2"
	}

	return &VictorOps{
		cfg:    cfg,
		region: region,
		bucket: aws.TestResultPath.Bucket,
		client: httpClient(cfg.Timeout),
		now:    time.Now,
	}, nil
}

func (v *VictorOps) Name() string {
	return "victorOps"
}

func (v *VictorOps) Send(ctx context.Context, ev Event) error {
	link := "https://s3-" + v.region + ".amazonaws.com/" + v.bucket + "/" + ev.Locator
	body := victorOpsPayload{
		MessageType:    v.cfg.MessageType,
		EntityID:       v.cfg.Entity + ":#" + strconv.FormatInt(v.now().UnixMilli(), 10),
		StateMessage:   stateMessage(ev, link),
		MonitoringTool: monitoringTool,
	}

	status, err := postJSON(ctx, v.client, v.cfg.URL, nil, body)
	if err != nil {
		return fmt.Errorf("can't send notification to VictorOps: %w", err)
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("can't send notification to VictorOps: unexpected status %d", status)
	}
	return nil
}
