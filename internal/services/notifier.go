package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/sentinel/pkg/logger"
)

// BlockNotice describes a key that just crossed the failure threshold
type BlockNotice struct {
	Key            string
	FailedAttempts int64
	Window         time.Duration
	BlockedUntil   time.Time
}

// BlockNotifier is told when a key is blocked for the first time
type BlockNotifier interface {
	NotifyBlocked(ctx context.Context, notice BlockNotice) error
}

// NoopBlockNotifier discards notices
type NoopBlockNotifier struct{}

func (NoopBlockNotifier) NotifyBlocked(context.Context, BlockNotice) error {
	return nil
}

// sesSender is the subset of the SES client used here
type sesSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESBlockNotifier emails operators through AWS SES when a block is triggered
type SESBlockNotifier struct {
	sesClient   sesSender
	fromAddress string
	recipients  []string
	logger      *slog.Logger
}

// NewSESBlockNotifier creates a notifier using the default AWS credential chain
func NewSESBlockNotifier(region, fromAddress string, recipients []string, logger *slog.Logger) (*SESBlockNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newSESBlockNotifier(ses.NewFromConfig(cfg), fromAddress, recipients, logger), nil
}

func newSESBlockNotifier(client sesSender, fromAddress string, recipients []string, logger *slog.Logger) *SESBlockNotifier {
	return &SESBlockNotifier{
		sesClient:   client,
		fromAddress: fromAddress,
		recipients:  recipients,
		logger:      logger,
	}
}

// NotifyBlocked sends one message to every configured recipient. Identity keys
// are masked before they leave the process.
func (n *SESBlockNotifier) NotifyBlocked(ctx context.Context, notice BlockNotice) error {
	if len(n.recipients) == 0 {
		return nil
	}

	key := pkglogger.SanitizedKey(notice.Key)
	subject := fmt.Sprintf("Login blocked: %s", key)

	var text strings.Builder
	fmt.Fprintf(&text, "Repeated failed logins triggered a temporary block.\n\n")
	fmt.Fprintf(&text, "Key:             %s\n", key)
	fmt.Fprintf(&text, "Failed attempts: %d in the last %s\n", notice.FailedAttempts, notice.Window)
	fmt.Fprintf(&text, "Blocked until:   %s\n\n", notice.BlockedUntil.UTC().Format(time.RFC1123))
	fmt.Fprintf(&text, "Clear the block early with: sentinelctl unblock\n")

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: n.recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(text.String()),
				},
			},
		},
	}

	result, err := n.sesClient.SendEmail(ctx, input)
	if err != nil {
		n.logger.Error("failed to send block notification via SES",
			slog.String("key", key),
			slog.Any("error", err))
		return fmt.Errorf("failed to send block notification: %w", err)
	}

	n.logger.Info("block notification sent",
		slog.String("key", key),
		slog.Int("recipients", len(n.recipients)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}
