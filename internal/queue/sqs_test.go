package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &sqs.SendMessageOutput{}, nil
}

func sampleMessage() *ProcessingMessage {
	return &ProcessingMessage{
		MessageID: "550e8400-e29b-41d4-a716-446655440000",
		JobID:     "550e8400-e29b-41d4-a716-446655440000",
		Bucket:    "aistudio-documents",
		Key:       "v2/uploads/550e8400-e29b-41d4-a716-446655440000/My_Report.pdf",
		FileName:  "My_Report.pdf",
		FileSize:  1024,
		FileType:  "application/pdf",
		UserID:    "u1",
		QueuedAt:  time.Now().UTC(),
	}
}

func TestSQSPublisher_SendsJSONBody(t *testing.T) {
	client := &fakeSQS{}
	p := NewSQSPublisher(client, "https://sqs.us-east-1.amazonaws.com/123/processing")

	require.NoError(t, p.Publish(context.Background(), sampleMessage()))
	require.Len(t, client.inputs, 1)

	input := client.inputs[0]
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/123/processing", *input.QueueUrl)
	assert.Nil(t, input.MessageDeduplicationId)

	var decoded ProcessingMessage
	require.NoError(t, json.Unmarshal([]byte(*input.MessageBody), &decoded))
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", decoded.MessageID)
	assert.Equal(t, "v2/uploads/550e8400-e29b-41d4-a716-446655440000/My_Report.pdf", decoded.Key)
	assert.Equal(t, "u1", decoded.UserID)
}

func TestSQSPublisher_FIFODeduplicatesOnJobID(t *testing.T) {
	client := &fakeSQS{}
	p := NewSQSPublisher(client, "https://sqs.us-east-1.amazonaws.com/123/processing.fifo")

	require.NoError(t, p.Publish(context.Background(), sampleMessage()))
	require.Len(t, client.inputs, 1)

	input := client.inputs[0]
	require.NotNil(t, input.MessageDeduplicationId)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", *input.MessageDeduplicationId)
	require.NotNil(t, input.MessageGroupId)
	assert.Equal(t, "u1", *input.MessageGroupId)
}

func TestSQSPublisher_PropagatesSendFailure(t *testing.T) {
	client := &fakeSQS{err: errors.New("throttled")}
	p := NewSQSPublisher(client, "https://sqs.us-east-1.amazonaws.com/123/processing")

	err := p.Publish(context.Background(), sampleMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish")
}
