package blobstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/yourorg/photo-gallery/pkg/errors"
	"github.com/yourorg/photo-gallery/pkg/logging"
)

var validate = validator.New()

// UploadRequest describes a single object upload.
type UploadRequest struct {
	Container string    `validate:"required"`
	Name      string    `validate:"required,max=1024"`
	Content   io.Reader `validate:"required"`
}

// ListOption customises ListObjects.
type ListOption func(*SegmentQuery)

// WithPrefix restricts the listing to names starting with prefix. The filter runs on the service.
func WithPrefix(prefix string) ListOption {
	return func(q *SegmentQuery) {
		q.Prefix = prefix
	}
}

// WithPageSizeHint bounds the number of items fetched per round trip. Zero or negative
// values leave the provider default in place.
func WithPageSizeHint(n int32) ListOption {
	return func(q *SegmentQuery) {
		if n > 0 {
			q.MaxResults = n
		}
	}
}

// WithListingDetail requests optional metadata for every listed item.
func WithListingDetail(d ListingDetail) ListOption {
	return func(q *SegmentQuery) {
		q.Detail = d
	}
}

// Gateway uploads objects and lists containers and objects through a Backend.
// It keeps no mutable state and may be shared by concurrent callers.
type Gateway struct {
	backend Backend
	logger  logging.Logger
}

// NewGateway wraps backend. A nil logger disables logging.
func NewGateway(backend Backend, logger logging.Logger) (*Gateway, error) {
	if backend == nil {
		return nil, fmt.Errorf("blobstore: backend is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Gateway{backend: backend, logger: logger}, nil
}

// Upload streams content into containerName under objectName as a block object,
// overwriting any object with the same name. The container must already exist.
// It returns once the service has acknowledged the whole stream; failures are reported
// as errors.ErrorCodeTransfer and are not retried.
func (g *Gateway) Upload(ctx context.Context, containerName string, content io.Reader, objectName string) (*ObjectReference, error) {
	req := UploadRequest{Container: containerName, Name: objectName, Content: content}
	if err := validate.Struct(req); err != nil {
		return nil, errors.NewValidationError("Invalid upload request: " + err.Error())
	}

	logger := g.logger.With(
		logging.NewField("operation", "blob.upload"),
		logging.NewField("container", containerName),
		logging.NewField("blob", objectName),
	)
	logger.Debug("Starting blob upload")

	counter := &countingReader{r: content}
	ref, err := g.backend.UploadBlockObject(ctx, containerName, objectName, counter)
	if err != nil {
		logger.Error("Failed to upload blob", logging.NewField("error", err), logging.NewField("bytes", counter.n))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.NewCancelledError("upload cancelled", err)
		}
		appErr := errors.NewTransferError("failed to upload blob", err)
		if stderrors.Is(err, ErrContainerNotFound) {
			appErr.WithHTTPStatus(http.StatusNotFound).WithDetails(map[string]interface{}{
				"container": containerName,
			})
		}
		return nil, appErr
	}

	if ref.Container == "" {
		ref.Container = containerName
	}
	if ref.Name == "" {
		ref.Name = objectName
	}
	if ref.Kind == KindAny {
		ref.Kind = KindBlock
	}
	if ref.Properties.ContentLength == 0 {
		ref.Properties.ContentLength = counter.n
	}

	logger.Info("Blob upload successful", logging.NewField("bytes", counter.n))
	return &ref, nil
}

// ListContainerNames lazily lists every container visible to the configured credentials,
// in the order the service returns them.
func (g *Gateway) ListContainerNames(ctx context.Context) *Iterator[string] {
	logger := g.logger.With(logging.NewField("operation", "container.list"))
	page := 0
	fetch := func(ctx context.Context, token *string) (Page[string], error) {
		page++
		res, err := g.backend.ListContainersSegment(ctx, token)
		if err != nil {
			logger.Debug("Container page failed", logging.NewField("page", page), logging.NewField("error", err))
			return res, err
		}
		logger.Debug("Fetched container page",
			logging.NewField("page", page),
			logging.NewField("count", len(res.Items)),
			logging.NewField("more", hasToken(res.Next)),
		)
		return res, nil
	}
	return NewIterator(ctx, "list containers", fetch, nil)
}

// ListObjects lazily lists the objects of containerName whose kind matches kind
// (KindAny keeps everything). Listings are flat: names are full paths and virtual
// directories are not collapsed. Kind filtering happens after each page is fetched, so
// it never changes the number of round trips.
func (g *Gateway) ListObjects(ctx context.Context, containerName string, kind ObjectKind, opts ...ListOption) *Iterator[ObjectReference] {
	if strings.TrimSpace(containerName) == "" {
		return failedIterator[ObjectReference](errors.NewValidationError("container name is required"))
	}

	var query SegmentQuery
	for _, opt := range opts {
		opt(&query)
	}

	logger := g.logger.With(
		logging.NewField("operation", "blob.list"),
		logging.NewField("container", containerName),
		logging.NewField("prefix", query.Prefix),
	)
	page := 0
	fetch := func(ctx context.Context, token *string) (Page[ObjectReference], error) {
		page++
		res, err := g.backend.ListObjectsSegment(ctx, containerName, query, token)
		if err != nil {
			logger.Debug("Blob page failed", logging.NewField("page", page), logging.NewField("error", err))
			if stderrors.Is(err, ErrContainerNotFound) {
				return res, errors.NewListingError("container "+containerName+" does not exist", err).
					WithHTTPStatus(http.StatusNotFound)
			}
			return res, err
		}
		logger.Debug("Fetched blob page",
			logging.NewField("page", page),
			logging.NewField("count", len(res.Items)),
			logging.NewField("more", hasToken(res.Next)),
		)
		return res, nil
	}
	keep := func(obj ObjectReference) bool {
		return kind.Matches(obj.Kind)
	}
	return NewIterator(ctx, "list blobs", fetch, keep)
}

func hasToken(token *string) bool {
	return token != nil && *token != ""
}

// countingReader records how many bytes the backend pulled from the caller's stream.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
