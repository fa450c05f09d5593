// Package awsclient loads the shared AWS configuration once per process so
// every service client is built explicitly in main and handed to its consumer.
package awsclient

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// FallbackRegion is used when neither AWS_REGION nor the shared profile sets one.
const FallbackRegion = "us-east-1"

// Load resolves credentials and region through the default provider chain.
func Load(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = FallbackRegion
	}
	return cfg, nil
}

// Clients bundles the service clients used across the binaries.
type Clients struct {
	Config         aws.Config
	Lambda         *lambda.Client
	AgentRuntime   *bedrockagentruntime.Client
	Agent          *bedrockagent.Client
	CloudFormation *cloudformation.Client
	STS            *sts.Client
	S3             *s3.Client
}

// NewClients builds every client from one configuration. invokeTimeout bounds
// synchronous Lambda invocations; zero keeps the SDK default.
func NewClients(cfg aws.Config, invokeTimeout time.Duration) *Clients {
	return &Clients{
		Config: cfg,
		Lambda: lambda.NewFromConfig(cfg, func(o *lambda.Options) {
			if invokeTimeout > 0 {
				o.HTTPClient = awsHTTPClient(invokeTimeout)
			}
		}),
		AgentRuntime:   bedrockagentruntime.NewFromConfig(cfg),
		Agent:          bedrockagent.NewFromConfig(cfg),
		CloudFormation: cloudformation.NewFromConfig(cfg),
		STS:            sts.NewFromConfig(cfg),
		S3:             s3.NewFromConfig(cfg),
	}
}
