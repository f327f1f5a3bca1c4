package s3backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"
)

const connectTimeout = 10 * time.Second

// Client puts archived import files into one bucket.
type Client struct {
	s3     *s3.Client
	config *Config
}

// NewClient connects to the configured bucket. Outside production a missing
// bucket is created.
func NewClient(cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("S3 archive is disabled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	c := &Client{
		s3: s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			if cfg.EndpointURL != "" {
				// MinIO, Backblaze B2 and friends
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
				o.UsePathStyle = true
			}
		}),
		config: cfg,
	}
	if err := c.ensureBucket(ctx); err != nil {
		return nil, err
	}

	log.Infof("[S3Archive] Archiving imports to bucket %s", cfg.BucketName)
	return c, nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	bucket := c.config.BucketName
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	if !c.config.CreateBucket {
		return fmt.Errorf("bucket %s not accessible: %w", bucket, err)
	}

	log.Warnf("[S3Archive] Bucket %s not found, creating it", bucket)
	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if c.config.EndpointURL == "" && c.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.config.Region),
		}
	}
	if _, err := c.s3.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

// UploadResult describes a stored object.
type UploadResult struct {
	BucketName  string
	ObjectKey   string
	Size        int64
	ContentType string
}

// UploadFile stores the file at localFilePath under objectKey.
func (c *Client) UploadFile(ctx context.Context, localFilePath, objectKey string) (*UploadResult, error) {
	file, err := os.Open(localFilePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", localFilePath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localFilePath, err)
	}

	res := &UploadResult{
		BucketName:  c.config.BucketName,
		ObjectKey:   objectKey,
		Size:        info.Size(),
		ContentType: ContentType(localFilePath),
	}
	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(res.BucketName),
		Key:           aws.String(objectKey),
		Body:          file,
		ContentType:   aws.String(res.ContentType),
		ContentLength: aws.Int64(res.Size),
		Metadata:      map[string]string{"upload-source": "closerdesk-import"},
	})
	if err != nil {
		return nil, fmt.Errorf("put s3://%s/%s: %w", res.BucketName, objectKey, err)
	}
	return res, nil
}

// ContentType maps an import file name to its MIME type.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
