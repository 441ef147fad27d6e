// Package cloudformation provisions each sandbox as a CloudFormation stack
// holding a single EC2 instance.
package cloudformation

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"

	"sandplane/internal/gateway"
	"sandplane/internal/store"
)

//go:embed template.yaml
var templateBody string

// Amazon Linux 2 in us-east-1.
const defaultImageID = "ami-0c02fb55956c7d316"

// API is the subset of the CloudFormation client used by the gateway.
type API interface {
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
}

// Config holds configuration for the CloudFormation gateway.
type Config struct {
	Region       string
	InstanceType string
	ImageID      string
}

// Gateway implements gateway.Gateway on top of CloudFormation.
type Gateway struct {
	client API
	config Config
	logger *slog.Logger
}

// New loads AWS credentials from the default chain and returns a gateway.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Gateway, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewWithClient(cloudformation.NewFromConfig(awsCfg), cfg, logger), nil
}

// NewWithClient returns a gateway using client.
func NewWithClient(client API, cfg Config, logger *slog.Logger) *Gateway {
	if cfg.InstanceType == "" {
		cfg.InstanceType = "t3.micro"
	}
	if cfg.ImageID == "" {
		cfg.ImageID = defaultImageID
	}
	return &Gateway{client: client, config: cfg, logger: logger}
}

// Create implements gateway.Gateway. The stack is named after the sandbox
// and the returned handle is the stack id.
func (g *Gateway) Create(ctx context.Context, name string) (gateway.Handle, store.SandboxStatus, error) {
	if err := gateway.ValidateName(name); err != nil {
		return "", "", err
	}

	out, err := g.client.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:    aws.String(name),
		TemplateBody: aws.String(templateBody),
		Parameters: []types.Parameter{
			{ParameterKey: aws.String("InstanceType"), ParameterValue: aws.String(g.config.InstanceType)},
			{ParameterKey: aws.String("ImageId"), ParameterValue: aws.String(g.config.ImageID)},
			{ParameterKey: aws.String("SandboxName"), ParameterValue: aws.String(name)},
		},
		Tags: []types.Tag{
			{Key: aws.String("Environment"), Value: aws.String("Sandbox")},
		},
	})
	if err != nil {
		return "", "", gateway.ProvisioningError(name, err)
	}

	stackID := aws.ToString(out.StackId)
	if stackID == "" {
		return "", "", gateway.ProvisioningError(name, errors.New("empty stack id in response"))
	}

	g.logger.Info("created sandbox stack", "sandbox", name, "stack_id", stackID)
	return gateway.Handle(stackID), store.SandboxStatusActive, nil
}

// Destroy implements gateway.Gateway. DeleteStack only starts the deletion;
// completion is not awaited.
func (g *Gateway) Destroy(ctx context.Context, handle gateway.Handle) (store.SandboxStatus, error) {
	_, err := g.client.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(string(handle)),
	})
	if err != nil {
		return "", gateway.DeprovisionError(handle, err)
	}

	g.logger.Info("deleting sandbox stack", "stack_id", string(handle))
	return store.SandboxStatusTerminated, nil
}
