package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of the S3 client used for listings.
type S3API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Uploader streams bodies of unknown length, switching to multipart when needed.
type S3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// defaultMaxBuckets pages ListBuckets. Without MaxBuckets S3 answers in a single
// response and never returns a continuation token.
const defaultMaxBuckets int32 = 1000

// S3Options configures NewS3Backend.
type S3Options struct {
	Region string
	// Endpoint targets an S3-compatible service (MinIO, LocalStack); path-style
	// addressing is enabled when set.
	Endpoint    string
	PartSize    int64
	Concurrency int
	// MaxBuckets is the bucket page size; zero means 1000.
	MaxBuckets int32
}

// S3Backend implements Backend on Amazon S3. Buckets play the role of containers and
// every object is reported as KindBlock.
type S3Backend struct {
	client     S3API
	uploader   S3Uploader
	maxBuckets int32
}

// NewS3Backend loads the default AWS credential chain and builds one shared client.
func NewS3Backend(ctx context.Context, opts S3Options) (*S3Backend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if opts.PartSize >= manager.MinUploadPartSize {
			u.PartSize = opts.PartSize
		}
		if opts.Concurrency > 0 {
			u.Concurrency = opts.Concurrency
		}
	})
	b := NewS3BackendWithClient(client, uploader)
	if opts.MaxBuckets > 0 {
		b.maxBuckets = opts.MaxBuckets
	}
	return b, nil
}

// NewS3BackendWithClient wraps existing clients.
func NewS3BackendWithClient(client S3API, uploader S3Uploader) *S3Backend {
	return &S3Backend{client: client, uploader: uploader, maxBuckets: defaultMaxBuckets}
}

// ListContainersSegment implements Backend with one ListBuckets call.
func (s *S3Backend) ListContainersSegment(ctx context.Context, token *string) (Page[string], error) {
	out, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{
		ContinuationToken: token,
		MaxBuckets:        aws.Int32(s.maxBuckets),
	})
	if err != nil {
		return Page[string]{}, fmt.Errorf("s3: list buckets: %w", err)
	}

	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		if b.Name != nil {
			names = append(names, *b.Name)
		}
	}
	return Page[string]{Items: names, Next: out.ContinuationToken}, nil
}

// ListObjectsSegment implements Backend with one ListObjectsV2 call and no delimiter.
// Listing detail flags have no S3 counterpart and are ignored.
func (s *S3Backend) ListObjectsSegment(ctx context.Context, bucket string, query SegmentQuery, token *string) (Page[ObjectReference], error) {
	in := &s3.ListObjectsV2Input{
		Bucket:            aws.String(bucket),
		ContinuationToken: token,
	}
	if query.Prefix != "" {
		in.Prefix = aws.String(query.Prefix)
	}
	if query.MaxResults > 0 {
		in.MaxKeys = aws.Int32(query.MaxResults)
	}

	out, err := s.client.ListObjectsV2(ctx, in)
	if err != nil {
		return Page[ObjectReference]{}, classifyS3Error("list objects", err)
	}

	refs := make([]ObjectReference, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		ref := ObjectReference{
			Container: bucket,
			Name:      *obj.Key,
			Kind:      KindBlock,
			URL:       "s3://" + bucket + "/" + *obj.Key,
		}
		if obj.Size != nil {
			ref.Properties.ContentLength = *obj.Size
		}
		if obj.ETag != nil {
			ref.Properties.ETag = *obj.ETag
		}
		if obj.LastModified != nil {
			ref.Properties.LastModified = *obj.LastModified
		}
		refs = append(refs, ref)
	}

	var next *string
	if aws.ToBool(out.IsTruncated) {
		next = out.NextContinuationToken
	}
	return Page[ObjectReference]{Items: refs, Next: next}, nil
}

// UploadBlockObject implements Backend. S3 overwrites existing keys.
func (s *S3Backend) UploadBlockObject(ctx context.Context, bucket, name string, content io.Reader) (ObjectReference, error) {
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
		Body:   content,
	})
	if err != nil {
		return ObjectReference{}, classifyS3Error("upload object", err)
	}

	ref := ObjectReference{
		Container: bucket,
		Name:      name,
		Kind:      KindBlock,
		URL:       out.Location,
	}
	if out.ETag != nil {
		ref.Properties.ETag = *out.ETag
	}
	return ref, nil
}

func classifyS3Error(op string, err error) error {
	var nsb *types.NoSuchBucket
	var apiErr smithy.APIError
	if errors.As(err, &nsb) || (errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket") {
		return fmt.Errorf("s3: %s: %w: %w", op, ErrContainerNotFound, err)
	}
	return fmt.Errorf("s3: %s: %w", op, err)
}
