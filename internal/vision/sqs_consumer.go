// Package vision ingests frame events produced by the external detection
// pipeline and feeds them to the occupancy reconciler. Frames arrive on an
// SQS queue, one FIFO stream per camera, so per-slot ordering is preserved.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/adith23/parking-automation-app/internal/domain"
	"github.com/adith23/parking-automation-app/internal/service"
)

type SQSConsumer struct {
	sqsClient    *sqs.Client
	queueURL     string
	occupancySvc *service.OccupancyService
}

func NewSQSConsumer(client *sqs.Client, queueURL string, occupancySvc *service.OccupancyService) *SQSConsumer {
	return &SQSConsumer{
		sqsClient:    client,
		queueURL:     queueURL,
		occupancySvc: occupancySvc,
	}
}

// Start long-polls the queue until the context is canceled. Messages that
// fail processing are left on the queue and redelivered after the
// visibility timeout; malformed messages are deleted outright since a
// retry cannot fix them.
func (c *SQSConsumer) Start(ctx context.Context) {
	log.Printf("VisionConsumer: listening on queue %s", c.queueURL)
	for {
		select {
		case <-ctx.Done():
			log.Println("VisionConsumer: context canceled, stopping")
			return
		default:
			receiveInput := &sqs.ReceiveMessageInput{
				QueueUrl:            aws.String(c.queueURL),
				MaxNumberOfMessages: 10,
				WaitTimeSeconds:     20,
				VisibilityTimeout:   60,
			}

			result, err := c.sqsClient.ReceiveMessage(ctx, receiveInput)
			if err != nil {
				log.Printf("VisionConsumer: error receiving messages: %v", err)
				select {
				case <-time.After(5 * time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}

			for _, message := range result.Messages {
				if message.Body == nil {
					c.deleteMessage(ctx, message.ReceiptHandle)
					continue
				}

				if err := c.handleFrame(ctx, *message.Body); err != nil {
					if isMalformed(err) {
						log.Printf("VisionConsumer: dropping malformed message: %v", err)
						c.deleteMessage(ctx, message.ReceiptHandle)
						continue
					}
					log.Printf("VisionConsumer: error processing message, will retry after visibility timeout: %v", err)
					continue
				}
				c.deleteMessage(ctx, message.ReceiptHandle)
			}
		}
	}
}

func (c *SQSConsumer) handleFrame(ctx context.Context, body string) error {
	var frame domain.VisionFrameEvent
	if err := json.Unmarshal([]byte(body), &frame); err != nil {
		return &malformedError{err: err}
	}
	if frame.ParkingLotID == 0 {
		return &malformedError{err: fmt.Errorf("frame event missing parking_lot_id")}
	}
	return c.occupancySvc.ProcessFrame(ctx, frame)
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		return
	}
	_, err := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		log.Printf("VisionConsumer: error deleting message: %v", err)
	}
}

type malformedError struct {
	err error
}

func (e *malformedError) Error() string { return "malformed frame event: " + e.err.Error() }
func (e *malformedError) Unwrap() error { return e.err }

func isMalformed(err error) bool {
	var m *malformedError
	return errors.As(err, &m)
}
