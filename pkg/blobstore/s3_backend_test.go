package blobstore

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3Client struct {
	mock.Mock
}

func (m *mockS3Client) ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.ListBucketsOutput)
	return out, args.Error(1)
}

func (m *mockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.ListObjectsV2Output)
	return out, args.Error(1)
}

type mockS3Uploader struct {
	mock.Mock
}

func (m *mockS3Uploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*manager.UploadOutput)
	return out, args.Error(1)
}

func TestS3Backend_ListContainersSegment(t *testing.T) {
	client := new(mockS3Client)
	client.On("ListBuckets", mock.Anything, mock.MatchedBy(func(in *s3.ListBucketsInput) bool {
		return in.ContinuationToken == nil && aws.ToInt32(in.MaxBuckets) == defaultMaxBuckets
	})).Return(&s3.ListBucketsOutput{
		Buckets:           []types.Bucket{{Name: aws.String("photos")}, {Name: nil}},
		ContinuationToken: aws.String("next"),
	}, nil).Once()
	client.On("ListBuckets", mock.Anything, mock.MatchedBy(func(in *s3.ListBucketsInput) bool {
		return aws.ToString(in.ContinuationToken) == "next" && aws.ToInt32(in.MaxBuckets) == defaultMaxBuckets
	})).Return(&s3.ListBucketsOutput{
		Buckets: []types.Bucket{{Name: aws.String("thumbs")}},
	}, nil).Once()

	gw := newTestGateway(t, NewS3BackendWithClient(client, new(mockS3Uploader)))
	got, err := Collect(gw.ListContainerNames(context.Background()), 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"photos", "thumbs"}, got)
	client.AssertExpectations(t)
}

func TestS3Backend_ListObjectsSegment(t *testing.T) {
	modified := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	client := new(mockS3Client)
	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.Bucket) == "photos" &&
			aws.ToString(in.Prefix) == "2023/" &&
			aws.ToInt32(in.MaxKeys) == 10 &&
			aws.ToString(in.ContinuationToken) == "tok"
	})).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{{
			Key:          aws.String("2023/x.jpg"),
			Size:         aws.Int64(42),
			ETag:         aws.String(`"abc"`),
			LastModified: &modified,
		}},
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("tok2"),
	}, nil)

	b := NewS3BackendWithClient(client, new(mockS3Uploader))
	page, err := b.ListObjectsSegment(context.Background(), "photos", SegmentQuery{Prefix: "2023/", MaxResults: 10}, aws.String("tok"))

	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	obj := page.Items[0]
	assert.Equal(t, "2023/x.jpg", obj.Name)
	assert.Equal(t, KindBlock, obj.Kind)
	assert.Equal(t, int64(42), obj.Properties.ContentLength)
	assert.Equal(t, modified, obj.Properties.LastModified)
	assert.Equal(t, "s3://photos/2023/x.jpg", obj.URL)
	assert.Equal(t, "tok2", aws.ToString(page.Next))
}

func TestS3Backend_ListObjectsIgnoresTokenWhenNotTruncated(t *testing.T) {
	client := new(mockS3Client)
	client.On("ListObjectsV2", mock.Anything, mock.Anything).Return(&s3.ListObjectsV2Output{
		IsTruncated:           aws.Bool(false),
		NextContinuationToken: aws.String("stale"),
	}, nil)

	b := NewS3BackendWithClient(client, new(mockS3Uploader))
	page, err := b.ListObjectsSegment(context.Background(), "photos", SegmentQuery{}, nil)

	require.NoError(t, err)
	assert.Nil(t, page.Next)
}

func TestS3Backend_NoSuchBucket(t *testing.T) {
	client := new(mockS3Client)
	client.On("ListObjectsV2", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("operation error S3: ListObjectsV2: %w", &types.NoSuchBucket{}))

	b := NewS3BackendWithClient(client, new(mockS3Uploader))
	_, err := b.ListObjectsSegment(context.Background(), "nope", SegmentQuery{}, nil)

	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestS3Backend_GenericNoSuchBucketCode(t *testing.T) {
	uploader := new(mockS3Uploader)
	uploader.On("Upload", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "bucket missing"})

	b := NewS3BackendWithClient(new(mockS3Client), uploader)
	_, err := b.UploadBlockObject(context.Background(), "nope", "a.jpg", strings.NewReader("x"))

	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestS3Backend_OtherErrorsPassThrough(t *testing.T) {
	client := new(mockS3Client)
	client.On("ListBuckets", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "AccessDenied"})

	b := NewS3BackendWithClient(client, new(mockS3Uploader))
	_, err := b.ListContainersSegment(context.Background(), nil)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrContainerNotFound)
}

func TestS3Backend_UploadBlockObject(t *testing.T) {
	uploader := new(mockS3Uploader)
	uploader.On("Upload", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		data, err := io.ReadAll(in.Body)
		return err == nil && string(data) == "jpeg" &&
			aws.ToString(in.Bucket) == "photos" && aws.ToString(in.Key) == "a.jpg"
	})).Return(&manager.UploadOutput{
		Location: "https://photos.s3.amazonaws.com/a.jpg",
		ETag:     aws.String(`"etag"`),
	}, nil)

	b := NewS3BackendWithClient(new(mockS3Client), uploader)
	ref, err := b.UploadBlockObject(context.Background(), "photos", "a.jpg", strings.NewReader("jpeg"))

	require.NoError(t, err)
	assert.Equal(t, "https://photos.s3.amazonaws.com/a.jpg", ref.URL)
	assert.Equal(t, `"etag"`, ref.Properties.ETag)
	assert.Equal(t, KindBlock, ref.Kind)
	uploader.AssertExpectations(t)
}

func TestNewS3Backend_MaxBuckets(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))

	b, err := NewS3Backend(context.Background(), S3Options{Region: "eu-west-1", MaxBuckets: 25})
	require.NoError(t, err)
	assert.Equal(t, int32(25), b.maxBuckets)

	b, err = NewS3Backend(context.Background(), S3Options{Region: "eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, defaultMaxBuckets, b.maxBuckets)
}
