package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"txt-worker/domain"
)

// SQSNotifier announces finished jobs on a downstream queue.
type SQSNotifier struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSNotifier(client *sqs.Client, queueURL string) *SQSNotifier {
	return &SQSNotifier{client: client, queueURL: queueURL}
}

func NewNotification(job domain.Job, res domain.JobResult) domain.Notification {
	n := domain.Notification{
		Type: domain.MsgTypeTxtComplete,
		Data: domain.NotificationData{
			JobID:   job.ID,
			PDFPath: job.SourcePath,
			TXTPath: job.OutputDir,
			Pages:   res.PagesWritten,
		},
	}
	if res.Status == domain.StatusFailed {
		n.Type = domain.MsgTypeTxtFailed
		if res.Err != nil {
			n.Data.Error = res.Err.Error()
		}
	}
	return n
}

func (n *SQSNotifier) Notify(ctx context.Context, job domain.Job, res domain.JobResult) error {
	body, err := json.Marshal(NewNotification(job, res))
	if err != nil {
		return fmt.Errorf("failed to marshal notification for job %s: %w", job.ID, err)
	}

	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", n.queueURL, err)
	}
	return nil
}
