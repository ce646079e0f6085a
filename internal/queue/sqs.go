package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/pkg/errors"

	"github.com/intergov/notary/internal/config"
	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/kms"
)

const maxBatch = 10

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSQueue is the notarization queue on top of SQS
type SQSQueue struct {
	client   sqsAPI
	url      string
	waitTime time.Duration
}

// NewSQSQueue returns a queue bound to url. waitTime enables long polling.
func NewSQSQueue(cfg aws.Config, awsCfg config.AWS, url string, waitTime time.Duration) *SQSQueue {
	client := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if kms.IsLocal(awsCfg) {
			o.BaseEndpoint = aws.String(awsCfg.Endpoint)
		}
	})
	return &SQSQueue{client: client, url: url, waitTime: waitTime}
}

// Receive leases up to maxMessages messages for visibility
func (q *SQSQueue) Receive(ctx context.Context, maxMessages int, visibility time.Duration) ([]domain.QueueMessage, error) {
	if maxMessages < 1 || maxMessages > maxBatch {
		maxMessages = maxBatch
	}
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: int32(maxMessages),
		VisibilityTimeout:   int32(visibility.Seconds()),
		WaitTimeSeconds:     int32(q.waitTime.Seconds()),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
			types.MessageSystemAttributeNameSentTimestamp,
		},
	})
	if err != nil {
		return nil, domain.NewTransientError("receive messages", errors.WithStack(err))
	}

	msgs := make([]domain.QueueMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		msg := domain.QueueMessage{
			ID:            aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
		}
		if n, err := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]); err == nil {
			msg.ReceiveCount = n
		}
		if ms, err := strconv.ParseInt(m.Attributes[string(types.MessageSystemAttributeNameSentTimestamp)], 10, 64); err == nil {
			msg.SentAt = time.UnixMilli(ms).UTC()
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Delete acknowledges a message
func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return domain.NewTransientError("delete message", errors.WithStack(err))
	}
	return nil
}

// Send enqueues body
func (q *SQSQueue) Send(ctx context.Context, body string) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return domain.NewTransientError("send message", errors.WithStack(err))
	}
	return nil
}
