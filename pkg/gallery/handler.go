// Package gallery exposes the photo upload and listing HTTP API on top of a blobstore.Gateway.
package gallery

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourorg/photo-gallery/pkg/blobstore"
	"github.com/yourorg/photo-gallery/pkg/errors"
	"github.com/yourorg/photo-gallery/pkg/httpservice"
	"github.com/yourorg/photo-gallery/pkg/logging"
	"github.com/yourorg/photo-gallery/pkg/middleware"
	"github.com/yourorg/photo-gallery/pkg/notify"
	"github.com/yourorg/photo-gallery/pkg/telemetry"
	"github.com/yourorg/photo-gallery/pkg/utils"
)

const (
	photoFormField   = "photo"
	nameFormField    = "name"
	defaultListLimit = 1000
	publishTimeout   = 5 * time.Second
)

// Options configures a Handler.
type Options struct {
	// PhotosContainer receives uploads posted to /api/v1/photos.
	PhotosContainer string
	// DefaultPageSize is the page size hint used when a listing request does not set one.
	DefaultPageSize int32
	// PublishBackoff bounds retries of upload events. Zero means utils.DefaultBackoff.
	PublishBackoff utils.Backoff
	// Recorder receives one StorageOperation per upload or listing; nil disables it.
	Recorder OperationRecorder
}

// OperationRecorder receives storage operation summaries. telemetry.NewRelicClient implements it.
type OperationRecorder interface {
	RecordStorageOperation(ctx context.Context, op telemetry.StorageOperation)
}

type nopRecorder struct{}

func (nopRecorder) RecordStorageOperation(context.Context, telemetry.StorageOperation) {}

// Handler serves the photo API.
type Handler struct {
	gateway   *blobstore.Gateway
	publisher notify.Publisher
	opts      Options
}

// NewHandler creates the photo API. A nil publisher disables upload events.
func NewHandler(gateway *blobstore.Gateway, publisher notify.Publisher, opts Options) (*Handler, error) {
	if gateway == nil {
		return nil, fmt.Errorf("gallery: gateway is required")
	}
	if opts.PhotosContainer == "" {
		return nil, fmt.Errorf("gallery: photos container is required")
	}
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.PublishBackoff.MaxAttempts == 0 {
		opts.PublishBackoff = utils.DefaultBackoff()
	}
	return &Handler{gateway: gateway, publisher: publisher, opts: opts}, nil
}

// Register implements httpservice.Handler.
func (h *Handler) Register(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.POST("/photos", httpservice.Wrap("upload_photo", h.uploadDefault))
		api.GET("/photos", httpservice.Wrap("list_photos", h.listDefault))
		api.GET("/containers", httpservice.Wrap("list_containers", h.listContainers))
		api.POST("/containers/:container/photos", httpservice.Wrap("upload_photo", h.uploadToContainer))
		api.GET("/containers/:container/photos", httpservice.Wrap("list_photos", h.listInContainer))
	}
}

type containerURI struct {
	Container string `uri:"container" validate:"required,min=3,max=63"`
}

type listContainersQuery struct {
	Limit int `form:"limit" validate:"gte=0,lte=5000"`
}

type listPhotosQuery struct {
	Prefix   string `form:"prefix" validate:"max=1024"`
	PageSize int32  `form:"page_size" validate:"gte=0,lte=5000"`
	Detail   string `form:"detail"`
	Kind     string `form:"kind"`
	Limit    int    `form:"limit" validate:"gte=0,lte=5000"`
}

// ListContainersResponse is the body of GET /api/v1/containers.
type ListContainersResponse struct {
	Containers []string `json:"containers"`
	Count      int      `json:"count"`
	RoundTrips int      `json:"round_trips"`
}

// ListPhotosResponse is the body of the photo listing endpoints.
type ListPhotosResponse struct {
	Container  string                      `json:"container"`
	Prefix     string                      `json:"prefix,omitempty"`
	Kind       blobstore.ObjectKind        `json:"kind,omitempty"`
	Photos     []blobstore.ObjectReference `json:"photos"`
	Count      int                         `json:"count"`
	RoundTrips int                         `json:"round_trips"`
}

func (h *Handler) uploadDefault(c *gin.Context) error {
	return h.upload(c, h.opts.PhotosContainer)
}

func (h *Handler) uploadToContainer(c *gin.Context) error {
	var uri containerURI
	if err := httpservice.BindURI(c, &uri); err != nil {
		return err
	}
	return h.upload(c, uri.Container)
}

// upload stores the multipart "photo" file. The object name is the "name" form field, else
// the uploaded file name, else a generated one.
func (h *Handler) upload(c *gin.Context, container string) error {
	file, err := c.FormFile(photoFormField)
	if err != nil {
		return errors.NewBadRequestError("multipart field \"" + photoFormField + "\" is required")
	}

	name := strings.TrimSpace(c.PostForm(nameFormField))
	if name == "" {
		name = path.Base(strings.ReplaceAll(file.Filename, "\\", "/"))
	}
	if name == "" || name == "." || name == "/" {
		name = utils.GenerateObjectName(file.Filename)
	}

	src, err := file.Open()
	if err != nil {
		return errors.NewBadRequestError("failed to read uploaded file")
	}
	defer src.Close()

	ctx := c.Request.Context()
	start := time.Now()
	ref, err := h.gateway.Upload(ctx, container, src, name)
	op := telemetry.StorageOperation{Name: "blob.upload", Container: container, Err: err}
	if ref != nil {
		op.Bytes = ref.Properties.ContentLength
		op.ItemCount = 1
	}
	h.record(ctx, op, start)
	if err != nil {
		return err
	}

	h.publishUploaded(ctx, ref)
	httpservice.RespondCreated(c, ref)
	return nil
}

// publishUploaded announces ref. Failures are logged; the upload itself already succeeded.
func (h *Handler) publishUploaded(ctx context.Context, ref *blobstore.ObjectReference) {
	event := notify.NewUploadedEvent(ref.Container, ref.Name, ref.URL, ref.Properties.ContentLength)
	event.RequestID = middleware.GetRequestID(ctx)
	event.TraceID = middleware.GetTraceID(ctx)

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := utils.Retry(pubCtx, h.opts.PublishBackoff, func(ctx context.Context) error {
		return h.publisher.PublishUploaded(ctx, event)
	})
	if err != nil {
		logging.FromContext(ctx).Warn("Failed to publish upload event",
			logging.NewField("event_id", event.EventID),
			logging.NewField("container", ref.Container),
			logging.NewField("blob", ref.Name),
			logging.NewField("error", err),
		)
	}
}

func (h *Handler) listContainers(c *gin.Context) error {
	var q listContainersQuery
	if err := httpservice.BindQuery(c, &q); err != nil {
		return err
	}

	ctx := c.Request.Context()
	start := time.Now()
	it := h.gateway.ListContainerNames(ctx)
	names, err := blobstore.Collect(it, limitOrDefault(q.Limit))
	h.record(ctx, telemetry.StorageOperation{
		Name:      "container.list",
		PageCount: it.Fetches(),
		ItemCount: len(names),
		Err:       err,
	}, start)
	if err != nil {
		return err
	}

	httpservice.RespondSuccess(c, ListContainersResponse{
		Containers: names,
		Count:      len(names),
		RoundTrips: it.Fetches(),
	})
	return nil
}

func (h *Handler) listDefault(c *gin.Context) error {
	return h.list(c, h.opts.PhotosContainer)
}

func (h *Handler) listInContainer(c *gin.Context) error {
	var uri containerURI
	if err := httpservice.BindURI(c, &uri); err != nil {
		return err
	}
	return h.list(c, uri.Container)
}

func (h *Handler) list(c *gin.Context, container string) error {
	var q listPhotosQuery
	if err := httpservice.BindQuery(c, &q); err != nil {
		return err
	}

	kind, ok := blobstore.ParseObjectKind(q.Kind)
	if !ok {
		return errors.NewValidationError("unknown kind " + q.Kind + "; expected block, page, append or any")
	}
	detail, err := blobstore.ParseListingDetail(q.Detail)
	if err != nil {
		return errors.NewValidationError(err.Error())
	}
	pageSize := q.PageSize
	if pageSize == 0 {
		pageSize = h.opts.DefaultPageSize
	}

	ctx := c.Request.Context()
	start := time.Now()
	it := h.gateway.ListObjects(ctx, container, kind,
		blobstore.WithPrefix(q.Prefix),
		blobstore.WithPageSizeHint(pageSize),
		blobstore.WithListingDetail(detail),
	)
	photos, err := blobstore.Collect(it, limitOrDefault(q.Limit))
	h.record(ctx, telemetry.StorageOperation{
		Name:      "blob.list",
		Container: container,
		Prefix:    q.Prefix,
		PageCount: it.Fetches(),
		ItemCount: len(photos),
		Err:       err,
	}, start)
	if err != nil {
		return err
	}

	httpservice.RespondSuccess(c, ListPhotosResponse{
		Container:  container,
		Prefix:     q.Prefix,
		Kind:       kind,
		Photos:     photos,
		Count:      len(photos),
		RoundTrips: it.Fetches(),
	})
	return nil
}

// record stamps op with timing and request identifiers and hands it to the recorder.
func (h *Handler) record(ctx context.Context, op telemetry.StorageOperation, start time.Time) {
	op.DurationMs = time.Since(start).Milliseconds()
	op.TraceID = middleware.GetTraceID(ctx)
	op.RequestID = middleware.GetRequestID(ctx)
	h.opts.Recorder.RecordStorageOperation(ctx, op)
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
