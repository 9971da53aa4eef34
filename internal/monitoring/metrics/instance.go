package metrics

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"

	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

type IMDSAPI interface {
	GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error)
}

const imdsTimeout = 2 * time.Second

// ResolveInstanceID asks the instance metadata service for the EC2 instance
// id and falls back to "Local" off EC2.
func ResolveInstanceID(ctx context.Context, client IMDSAPI) string {
	log := logger.WithComponent("metrics")

	ctx, cancel := context.WithTimeout(ctx, imdsTimeout)
	defer cancel()

	out, err := client.GetMetadata(ctx, &imds.GetMetadataInput{Path: "instance-id"})
	if err != nil {
		log.Debug().Err(err).Msg("Instance metadata unavailable, using local instance id")
		return DefaultInstanceID
	}
	defer out.Content.Close()

	data, err := io.ReadAll(out.Content)
	id := strings.TrimSpace(string(data))
	if err != nil || id == "" {
		return DefaultInstanceID
	}
	return id
}
