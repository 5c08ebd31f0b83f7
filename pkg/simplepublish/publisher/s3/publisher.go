package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

// KeyFunc computes the object key for one delivery. The default layout is
// items/<item id>/<target>.json, which is naturally idempotent: republishing
// the same item overwrites the same object.
type KeyFunc func(req simplepublish.PublishRequest) string

// Config options for the S3 publisher
type Config struct {
	Target          string // target name (default "s3")
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)
	PublicBaseURL   string // Optional base for the returned remote URL
	KeyFunc         KeyFunc
}

// Publisher implements simplepublish.Publisher by writing the payload as a
// JSON object to an S3-compatible bucket. It serves archival and static-site
// pipelines that render published content from object storage.
type Publisher struct {
	target string
	client *s3.Client
	config Config
}

// New creates an S3 publisher
func New(ctx context.Context, config Config) (*Publisher, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.Target == "" {
		config.Target = "s3"
	}
	if config.KeyFunc == nil {
		config.KeyFunc = defaultKey
	}

	var awsCfg aws.Config
	var err error

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(config.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	return &Publisher{
		target: simplepublish.NormalizeTarget(config.Target),
		client: s3.NewFromConfig(awsCfg, s3Options...),
		config: config,
	}, nil
}

// Target returns the target name this publisher serves
func (p *Publisher) Target() string {
	return p.target
}

// document is the object body: the payload plus enough envelope to rebuild
// the item downstream.
type document struct {
	ItemID  string                `json:"item_id"`
	Target  string                `json:"target"`
	Payload simplepublish.Payload `json:"payload"`
}

// Publish uploads the payload document to the bucket
func (p *Publisher) Publish(ctx context.Context, req simplepublish.PublishRequest) (*simplepublish.PublishOutcome, error) {
	doc := document{
		ItemID:  req.ItemID.String(),
		Target:  req.Target,
		Payload: req.Payload,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	key := p.config.KeyFunc(req)
	uploader := manager.NewUploader(p.client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		// Surface remote status failures so the executor can classify them.
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) {
			return nil, &simplepublish.HTTPError{
				StatusCode: respErr.HTTPStatusCode(),
				Status:     http.StatusText(respErr.HTTPStatusCode()),
				Body:       respErr.Error(),
			}
		}
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &simplepublish.PublishOutcome{
		Target:    p.target,
		Success:   true,
		RemoteID:  key,
		RemoteURL: p.remoteURL(key),
	}, nil
}

func (p *Publisher) remoteURL(key string) string {
	if p.config.PublicBaseURL != "" {
		return strings.TrimRight(p.config.PublicBaseURL, "/") + "/" + key
	}
	if p.config.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(p.config.Endpoint, "/"), p.config.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.config.Bucket, p.config.Region, key)
}

func defaultKey(req simplepublish.PublishRequest) string {
	return fmt.Sprintf("items/%s/%s.json", req.ItemID, req.Target)
}
