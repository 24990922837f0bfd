package blobstore

import (
	"context"
	"io"
)

// Page is the result of one listing round trip.
type Page[T any] struct {
	Items []T
	// Next is the continuation token for the following page. Nil or empty means the
	// listing is complete.
	Next *string
}

// Backend is the storage service as seen by the Gateway. Every method performs at most
// one round trip to the remote service.
type Backend interface {
	// ListContainersSegment fetches the container page identified by token, nil for the first page.
	ListContainersSegment(ctx context.Context, token *string) (Page[string], error)

	// ListObjectsSegment fetches one flat (delimiter-free) page of objects in container.
	ListObjectsSegment(ctx context.Context, container string, query SegmentQuery, token *string) (Page[ObjectReference], error)

	// UploadBlockObject streams content into container under name, overwriting any existing
	// object. It returns once the service acknowledged the whole stream. The container must
	// already exist; backends wrap ErrContainerNotFound otherwise.
	UploadBlockObject(ctx context.Context, container, name string, content io.Reader) (ObjectReference, error)
}
