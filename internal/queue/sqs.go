// Package queue publishes processing hand-off messages to SQS.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSAPI is the subset of the SQS client the publisher needs.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends one message per publish call, no internal retries: a
// blind retry here could double-enqueue, and the re-drive path already covers
// transient failures.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
}

func NewSQSPublisher(client SQSAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL}
}

func (p *SQSPublisher) Publish(ctx context.Context, msg *ProcessingMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode processing message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}

	// FIFO queues get native dedup on the job id; standard queues rely on the
	// consumer checking msg.MessageID.
	if strings.HasSuffix(p.queueURL, ".fifo") {
		input.MessageDeduplicationId = aws.String(msg.MessageID)
		input.MessageGroupId = aws.String(msg.UserID)
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("failed to publish processing message: %w", err)
	}
	return nil
}
