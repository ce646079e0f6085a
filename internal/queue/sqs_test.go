package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intergov/notary/internal/core/domain"
)

type fakeSQS struct {
	lastReceive *sqs.ReceiveMessageInput
	deleted     []string
	sent        []string
	fail        error
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.lastReceive = in
	if f.fail != nil {
		return nil, f.fail
	}
	return &sqs.ReceiveMessageOutput{Messages: []types.Message{{
		MessageId:     aws.String("m1"),
		ReceiptHandle: aws.String("r1"),
		Body:          aws.String(`{"Records":[]}`),
		Attributes: map[string]string{
			"ApproximateReceiveCount": "3",
			"SentTimestamp":           "1700000000000",
		},
	}}}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, f.fail
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{}, f.fail
}

func TestSQSQueue(t *testing.T) {
	ctx := context.Background()
	fake := &fakeSQS{}
	q := &SQSQueue{client: fake, url: "http://localhost:4566/000000000000/notary", waitTime: 10 * time.Second}

	msgs, err := q.Receive(ctx, 25, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int32(10), fake.lastReceive.MaxNumberOfMessages)
	assert.Equal(t, int32(60), fake.lastReceive.VisibilityTimeout)
	assert.Equal(t, int32(10), fake.lastReceive.WaitTimeSeconds)
	assert.Equal(t, "r1", msgs[0].ReceiptHandle)
	assert.Equal(t, 3, msgs[0].ReceiveCount)
	assert.Equal(t, int64(1700000000000), msgs[0].SentAt.UnixMilli())

	require.NoError(t, q.Delete(ctx, "r1"))
	require.NoError(t, q.Send(ctx, "body"))
	assert.Equal(t, []string{"r1"}, fake.deleted)
	assert.Equal(t, []string{"body"}, fake.sent)
}

func TestSQSQueueErrorsAreTransient(t *testing.T) {
	ctx := context.Background()
	q := &SQSQueue{client: &fakeSQS{fail: errors.New("throttled")}, url: "u"}
	_, err := q.Receive(ctx, 1, time.Second)
	assert.True(t, domain.IsTransientError(err))
	assert.True(t, domain.IsTransientError(q.Delete(ctx, "r")))
	assert.True(t, domain.IsTransientError(q.Send(ctx, "b")))
}
