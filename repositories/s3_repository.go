package repositories

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"txt-worker/domain"
)

type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Repository mirrors written pages into a bucket under the job's output directory.
type S3Repository struct {
	client S3API
	bucket string
}

func NewS3Repository(cfg aws.Config, bucket string) *S3Repository {
	return &S3Repository{
		client: s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.UsePathStyle = true
		}),
		bucket: bucket,
	}
}

func NewS3RepositoryFromClient(client S3API, bucket string) *S3Repository {
	return &S3Repository{client: client, bucket: bucket}
}

// PageKey maps /out/book and page 0 to out/book/1.txt.
func PageKey(outputDir string, page domain.PageResult) string {
	dir := strings.Trim(path.Clean("/"+outputDir), "/")
	if dir == "" {
		return page.FileName()
	}
	return dir + "/" + page.FileName()
}

func (r *S3Repository) UploadPage(ctx context.Context, job domain.Job, page domain.PageResult) (string, error) {
	key := PageKey(job.OutputDir, page)
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(page.Text),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to bucket %s: %w", key, r.bucket, err)
	}
	return fmt.Sprintf("s3://%s/%s", r.bucket, key), nil
}
