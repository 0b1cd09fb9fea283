package publish

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"

	"github.com/DeafMist/festival-radar/backend/internal/models"
)

// ObjectPutter is implemented by *s3.Client.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads the event set twice: as the "latest" object the site reads and
// under the run id for history.
type S3 struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3Client loads the default AWS credential chain. If endpoint is
// non-empty, path-style addressing is enabled (for MinIO and similar).
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var opts []func(*s3.Options)
	if endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(cfg, opts...), nil
}

func NewS3(client ObjectPutter, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

func (d *S3) Name() string { return "s3" }

// Keys returns the latest and per-run object keys for runID.
func (d *S3) Keys(runID string) (latest, run string) {
	return path.Join(d.prefix, EventsFile), path.Join(d.prefix, "runs", runID+".json")
}

func (d *S3) Publish(ctx context.Context, set *models.EventSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal event set: %w", err)
	}
	latest, run := d.Keys(set.RunID)
	for _, key := range []string{run, latest} {
		_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:       aws.String(d.bucket),
			Key:          aws.String(key),
			Body:         bytes.NewReader(data),
			ContentType:  aws.String("application/json"),
			CacheControl: aws.String("max-age=300"),
		})
		if err != nil {
			return fmt.Errorf("s3 put object %s: %w", key, err)
		}
	}
	return nil
}
