package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"
)

// AzureOptions tunes block uploads. Zero values keep the SDK defaults.
type AzureOptions struct {
	BlockSize   int64
	Concurrency int
}

// AzureBackend implements Backend on Azure Blob Storage.
type AzureBackend struct {
	client *azblob.Client
	opts   AzureOptions
}

// NewAzureBackendFromConnectionString creates the storage client for a storage account
// connection string. The client owns the connection pool and is meant to be created once.
func NewAzureBackendFromConnectionString(connectionString string, opts AzureOptions) (*AzureBackend, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}
	return NewAzureBackend(client, opts), nil
}

// NewAzureBackend wraps an existing client.
func NewAzureBackend(client *azblob.Client, opts AzureOptions) *AzureBackend {
	return &AzureBackend{client: client, opts: opts}
}

// containerClient derives a container handle. This is local; nothing is sent to the service.
func (a *AzureBackend) containerClient(name string) *container.Client {
	return a.client.ServiceClient().NewContainerClient(name)
}

// ListContainersSegment implements Backend. A fresh pager positioned at token is used for
// a single NextPage call, so each segment is one List Containers request.
func (a *AzureBackend) ListContainersSegment(ctx context.Context, token *string) (Page[string], error) {
	pager := a.client.ServiceClient().NewListContainersPager(&service.ListContainersOptions{
		Marker: token,
	})
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return Page[string]{}, fmt.Errorf("azure: list containers: %w", err)
	}

	names := make([]string, 0, len(resp.ContainerItems))
	for _, item := range resp.ContainerItems {
		if item == nil || item.Name == nil {
			continue
		}
		names = append(names, *item.Name)
	}
	return Page[string]{Items: names, Next: resp.NextMarker}, nil
}

// ListObjectsSegment implements Backend using the flat listing, so names are full paths.
func (a *AzureBackend) ListObjectsSegment(ctx context.Context, containerName string, query SegmentQuery, token *string) (Page[ObjectReference], error) {
	opts := &container.ListBlobsFlatOptions{
		Include: includeFor(query.Detail),
		Marker:  token,
	}
	if query.Prefix != "" {
		prefix := query.Prefix
		opts.Prefix = &prefix
	}
	if query.MaxResults > 0 {
		maxResults := query.MaxResults
		opts.MaxResults = &maxResults
	}

	cc := a.containerClient(containerName)
	pager := cc.NewListBlobsFlatPager(opts)
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return Page[ObjectReference]{}, classifyAzureError("list blobs", err)
	}

	var refs []ObjectReference
	if resp.Segment != nil {
		refs = make([]ObjectReference, 0, len(resp.Segment.BlobItems))
		for _, item := range resp.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			ref := objectFromBlobItem(containerName, item)
			ref.URL = cc.NewBlobClient(ref.Name).URL()
			refs = append(refs, ref)
		}
	}
	return Page[ObjectReference]{Items: refs, Next: resp.NextMarker}, nil
}

// UploadBlockObject implements Backend. The container is not created on demand.
func (a *AzureBackend) UploadBlockObject(ctx context.Context, containerName, name string, content io.Reader) (ObjectReference, error) {
	bb := a.containerClient(containerName).NewBlockBlobClient(name)

	resp, err := bb.UploadStream(ctx, content, &blockblob.UploadStreamOptions{
		BlockSize:   a.opts.BlockSize,
		Concurrency: a.opts.Concurrency,
	})
	if err != nil {
		return ObjectReference{}, classifyAzureError("upload blob", err)
	}

	ref := ObjectReference{
		Container: containerName,
		Name:      name,
		Kind:      KindBlock,
		URL:       bb.URL(),
	}
	if resp.ETag != nil {
		ref.Properties.ETag = string(*resp.ETag)
	}
	if resp.LastModified != nil {
		ref.Properties.LastModified = *resp.LastModified
	}
	return ref, nil
}

// includeFor maps listing detail flags onto the service's include parameter.
func includeFor(d ListingDetail) container.ListBlobsInclude {
	return container.ListBlobsInclude{
		Snapshots:        d.Has(DetailSnapshots),
		Metadata:         d.Has(DetailMetadata),
		UncommittedBlobs: d.Has(DetailUncommitted),
		Copy:             d.Has(DetailCopy),
		Deleted:          d.Has(DetailDeleted),
	}
}

func objectFromBlobItem(containerName string, item *container.BlobItem) ObjectReference {
	ref := ObjectReference{
		Container: containerName,
		Name:      *item.Name,
	}
	if item.Snapshot != nil {
		ref.Snapshot = *item.Snapshot
	}
	if item.Deleted != nil {
		ref.Deleted = *item.Deleted
	}
	if len(item.Metadata) > 0 {
		ref.Metadata = make(map[string]string, len(item.Metadata))
		for k, v := range item.Metadata {
			if v != nil {
				ref.Metadata[k] = *v
			}
		}
	}

	p := item.Properties
	if p == nil {
		return ref
	}
	if p.BlobType != nil {
		ref.Kind = ObjectKind(*p.BlobType)
	}
	if p.ContentLength != nil {
		ref.Properties.ContentLength = *p.ContentLength
	}
	if p.ContentType != nil {
		ref.Properties.ContentType = *p.ContentType
	}
	if p.ETag != nil {
		ref.Properties.ETag = string(*p.ETag)
	}
	if p.LastModified != nil {
		ref.Properties.LastModified = *p.LastModified
	}
	if p.CopyStatus != nil {
		ref.Properties.CopyStatus = string(*p.CopyStatus)
	}
	return ref
}

// classifyAzureError tags missing-container responses with ErrContainerNotFound.
func classifyAzureError(op string, err error) error {
	if bloberror.HasCode(err, bloberror.ContainerNotFound) {
		return fmt.Errorf("azure: %s: %w: %w", op, ErrContainerNotFound, err)
	}
	return fmt.Errorf("azure: %s: %w", op, err)
}
