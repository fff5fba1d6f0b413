package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSESSender struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSESSender) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESBlockNotifier_SendsMaskedNotice(t *testing.T) {
	sender := &fakeSESSender{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	n := newSESBlockNotifier(sender, "alerts@example.com", []string{"ops@example.com"}, logger)

	err := n.NotifyBlocked(context.Background(), BlockNotice{
		Key:            "email:victim@example.com",
		FailedAttempts: 5,
		Window:         15 * time.Minute,
		BlockedUntil:   time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, sender.inputs, 1)

	input := sender.inputs[0]
	assert.Equal(t, "alerts@example.com", aws.ToString(input.Source))
	assert.Equal(t, []string{"ops@example.com"}, input.Destination.ToAddresses)

	subject := aws.ToString(input.Message.Subject.Data)
	body := aws.ToString(input.Message.Body.Text.Data)
	assert.NotContains(t, subject, "victim")
	assert.NotContains(t, body, "victim")
	assert.Contains(t, body, "Failed attempts: 5 in the last 15m0s")
}

func TestSESBlockNotifier_NoRecipients(t *testing.T) {
	sender := &fakeSESSender{}
	n := newSESBlockNotifier(sender, "alerts@example.com", nil, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	require.NoError(t, n.NotifyBlocked(context.Background(), BlockNotice{Key: "ip:10.0.0.1"}))
	assert.Empty(t, sender.inputs)
}

func TestSESBlockNotifier_SendFailure(t *testing.T) {
	sender := &fakeSESSender{err: errors.New("throttled")}
	n := newSESBlockNotifier(sender, "alerts@example.com", []string{"ops@example.com"}, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	err := n.NotifyBlocked(context.Background(), BlockNotice{Key: "ip:10.0.0.1"})
	assert.Error(t, err)
}
