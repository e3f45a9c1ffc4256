package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/leadpulse/outreach/internal/config"
	"github.com/leadpulse/outreach/internal/content"
	"github.com/leadpulse/outreach/internal/domain"
	"github.com/leadpulse/outreach/internal/pkg/logger"
)

// sesAPI is the slice of the SES v2 client the provider uses.
type sesAPI interface {
	SendEmail(ctx context.Context, input *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESProvider sends email through AWS SES v2.
type SESProvider struct {
	client    sesAPI
	fromName  string
	fromEmail string
}

// NewSESProvider creates the email provider from config. Returns an error
// if credentials are missing or the AWS config cannot be assembled.
func NewSESProvider(cfg config.EmailConfig) (*SESProvider, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("ses: access key and secret key are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}

	return &SESProvider{
		client:    sesv2.NewFromConfig(awsCfg),
		fromName:  cfg.FromName,
		fromEmail: cfg.FromEmail,
	}, nil
}

// Channel reports the channel this provider serves.
func (p *SESProvider) Channel() domain.Channel { return domain.ChannelEmail }

// Send delivers one rendered email and returns the SES message id.
func (p *SESProvider) Send(ctx context.Context, identity string, msg *content.Rendered) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", p.fromName, p.fromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{identity}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	result, err := p.client.SendEmail(ctx, input)
	if err != nil {
		logger.Error("ses send failed", "email", identity, "error", err.Error())
		return "", classifySESError(err)
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	logger.Debug("ses send ok", "email", identity, "message_id", messageID)
	return messageID, nil
}

// classifySESError maps SES API errors onto the retry taxonomy. Rejected
// recipients and suspended accounts will never succeed; throttling and
// quota pressure will.
func classifySESError(err error) error {
	var (
		rejected  *types.MessageRejected
		badReq    *types.BadRequestException
		suspended *types.AccountSuspendedException
		throttled *types.TooManyRequestsException
		quota     *types.LimitExceededException
		paused    *types.SendingPausedException
	)
	switch {
	case errors.As(err, &rejected), errors.As(err, &badReq), errors.As(err, &suspended):
		return Permanent(err)
	case errors.As(err, &throttled), errors.As(err, &quota), errors.As(err, &paused):
		return Transient(err)
	}
	// Network failures and unknown API errors get the benefit of a retry.
	return Transient(err)
}
