// Package iot connects the parking core to AWS IoT: AI detections arrive over
// SQS and lot availability leaves over MQTT to the signage at lot entrances.
package iot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/mynul56/smart-parking-ai/internal/logging"
)

// SQSAPI is the subset of *sqs.Client the consumer uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type MessageHandler interface {
	HandleMessage(ctx context.Context, body []byte) error
}

type SQSConsumer struct {
	sqsClient  SQSAPI
	queueURL   string
	handler    MessageHandler
	retryDelay time.Duration
	waitTime   int32
}

func NewSQSConsumer(client SQSAPI, queueURL string, handler MessageHandler) *SQSConsumer {
	return &SQSConsumer{
		sqsClient:  client,
		queueURL:   queueURL,
		handler:    handler,
		retryDelay: 5 * time.Second,
		waitTime:   20,
	}
}

// Start long-polls the queue until ctx is cancelled. A message is deleted
// only when its handler succeeds; otherwise it reappears after the
// visibility timeout.
func (c *SQSConsumer) Start(ctx context.Context) error {
	logging.Info(ctx, "detection consumer started", slog.String("queue_url", c.queueURL))
	for {
		if ctx.Err() != nil {
			logging.Info(ctx, "detection consumer stopped")
			return nil
		}

		result, err := c.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     c.waitTime,
			VisibilityTimeout:   60,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			logging.Error(ctx, "receive detection messages", logging.Err(err))
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
			}
			continue
		}

		for _, message := range result.Messages {
			c.process(ctx, message.MessageId, message.Body, message.ReceiptHandle)
		}
	}
}

func (c *SQSConsumer) process(ctx context.Context, id, body, receipt *string) {
	if body == nil {
		c.deleteMessage(ctx, receipt)
		return
	}
	if err := c.handler.HandleMessage(ctx, []byte(*body)); err != nil {
		logging.Warn(ctx, "detection message will be redelivered",
			slog.String("message_id", aws.ToString(id)),
			logging.Err(err),
		)
		return
	}
	c.deleteMessage(ctx, receipt)
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		logging.Warn(ctx, "message has no receipt handle")
		return
	}
	_, err := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		logging.Error(ctx, "delete detection message", logging.Err(err))
	}
}
