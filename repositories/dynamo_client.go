package repositories

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"txt-worker/domain"
)

type DynamoDBAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoDBClient keeps one item per txt job, keyed by job_id.
type DynamoDBClient struct {
	client    DynamoDBAPI
	tableName string
}

func NewDynamoDBClient(client DynamoDBAPI, tableName string) *DynamoDBClient {
	return &DynamoDBClient{
		client:    client,
		tableName: tableName,
	}
}

// MarkRunning records the accepted job with its source and output paths.
func (d *DynamoDBClient) MarkRunning(ctx context.Context, job domain.Job) error {
	return d.update(ctx, job.ID,
		"SET #s = :status, pdf_path = :pdf, txt_path = :txt, received_at = :rat",
		map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: domain.StatusRunning},
			":pdf":    &types.AttributeValueMemberS{Value: job.SourcePath},
			":txt":    &types.AttributeValueMemberS{Value: job.OutputDir},
			":rat":    &types.AttributeValueMemberS{Value: job.ReceivedAt.UTC().Format(time.RFC3339)},
		})
}

// MarkFinished stores the terminal status and page counts. The error attribute is only set on failure.
func (d *DynamoDBClient) MarkFinished(ctx context.Context, job domain.Job, res domain.JobResult) error {
	expr := "SET #s = :status, completed_at = :cat, pages = :pages, page_errors = :perr"
	values := map[string]types.AttributeValue{
		":status": &types.AttributeValueMemberS{Value: res.Status},
		":cat":    &types.AttributeValueMemberS{Value: res.CompletedAt.UTC().Format(time.RFC3339)},
		":pages":  &types.AttributeValueMemberN{Value: strconv.Itoa(res.PagesWritten)},
		":perr":   &types.AttributeValueMemberN{Value: strconv.Itoa(res.PageErrors)},
	}
	if res.Err != nil {
		expr += ", #e = :err"
		values[":err"] = &types.AttributeValueMemberS{Value: res.Err.Error()}
	}
	if err := d.update(ctx, job.ID, expr, values); err != nil {
		return err
	}
	log.Printf("Job %s is %s in DynamoDB (%d pages)", job.ID, res.Status, res.PagesWritten)
	return nil
}

func (d *DynamoDBClient) update(ctx context.Context, jobID, expr string, values map[string]types.AttributeValue) error {
	if d.tableName == "" {
		log.Printf("Warning: DYNAMODB_TABLE not configured, skipping status update for job %s", jobID)
		return nil
	}

	names := map[string]string{"#s": "status"}
	if _, ok := values[":err"]; ok {
		names["#e"] = "error"
	}

	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"job_id": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("failed to update status of job %s in DynamoDB: %w", jobID, err)
	}
	return nil
}
