package blobstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const defaultMemoryPageSize = 5000

// MemoryBackend is an in-memory Backend with synchronous visibility: an upload is listed
// by the very next page request. Listings are ordered by name and paginated with the
// last returned name as the continuation token.
type MemoryBackend struct {
	mu         sync.RWMutex
	containers map[string]map[string]*memoryObject // container -> name -> object
	pageSize   int
	roundTrips atomic.Int64
	now        func() time.Time
}

type memoryObject struct {
	kind     ObjectKind
	data     []byte
	metadata map[string]string
	modified time.Time
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithMemoryPageSize caps every page at n items.
func WithMemoryPageSize(n int) MemoryOption {
	return func(m *MemoryBackend) {
		if n > 0 {
			m.pageSize = n
		}
	}
}

// NewMemoryBackend creates an empty backend; containers are created with CreateContainer.
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	m := &MemoryBackend{
		containers: make(map[string]map[string]*memoryObject),
		pageSize:   defaultMemoryPageSize,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateContainer adds an empty container. Creating an existing container is a no-op.
func (m *MemoryBackend) CreateContainer(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.containers[name] == nil {
		m.containers[name] = make(map[string]*memoryObject)
	}
}

// Put stores an object of any kind, creating the container when needed. It is meant for
// seeding fixtures and does not count as a round trip.
func (m *MemoryBackend) Put(container, name string, kind ObjectKind, data []byte, metadata map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.containers[container] == nil {
		m.containers[container] = make(map[string]*memoryObject)
	}
	m.containers[container][name] = &memoryObject{
		kind:     kind,
		data:     append([]byte(nil), data...),
		metadata: metadata,
		modified: m.now(),
	}
}

// Get returns a copy of the stored bytes.
func (m *MemoryBackend) Get(container, name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.containers[container][name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// RoundTrips returns the number of Backend calls served so far.
func (m *MemoryBackend) RoundTrips() int {
	return int(m.roundTrips.Load())
}

// ListContainersSegment implements Backend.
func (m *MemoryBackend) ListContainersSegment(ctx context.Context, token *string) (Page[string], error) {
	m.roundTrips.Add(1)
	if err := ctx.Err(); err != nil {
		return Page[string]{}, err
	}

	m.mu.RLock()
	names := make([]string, 0, len(m.containers))
	for name := range m.containers {
		names = append(names, name)
	}
	m.mu.RUnlock()

	sort.Strings(names)
	items, next := paginate(names, func(s string) string { return s }, token, m.pageSize)
	return Page[string]{Items: items, Next: next}, nil
}

// ListObjectsSegment implements Backend.
func (m *MemoryBackend) ListObjectsSegment(ctx context.Context, container string, query SegmentQuery, token *string) (Page[ObjectReference], error) {
	m.roundTrips.Add(1)
	if err := ctx.Err(); err != nil {
		return Page[ObjectReference]{}, err
	}

	m.mu.RLock()
	objects, ok := m.containers[container]
	if !ok {
		m.mu.RUnlock()
		return Page[ObjectReference]{}, fmt.Errorf("memory: %w: %s", ErrContainerNotFound, container)
	}
	refs := make([]ObjectReference, 0, len(objects))
	for name, obj := range objects {
		if !strings.HasPrefix(name, query.Prefix) {
			continue
		}
		refs = append(refs, m.reference(container, name, obj, query.Detail))
	}
	m.mu.RUnlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })

	size := m.pageSize
	if query.MaxResults > 0 && int(query.MaxResults) < size {
		size = int(query.MaxResults)
	}
	items, next := paginate(refs, func(r ObjectReference) string { return r.Name }, token, size)
	return Page[ObjectReference]{Items: items, Next: next}, nil
}

// UploadBlockObject implements Backend.
func (m *MemoryBackend) UploadBlockObject(ctx context.Context, container, name string, content io.Reader) (ObjectReference, error) {
	m.roundTrips.Add(1)

	m.mu.RLock()
	_, ok := m.containers[container]
	m.mu.RUnlock()
	if !ok {
		return ObjectReference{}, fmt.Errorf("memory: %w: %s", ErrContainerNotFound, container)
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return ObjectReference{}, fmt.Errorf("memory: failed to read content: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return ObjectReference{}, err
	}

	obj := &memoryObject{kind: KindBlock, data: data, modified: m.now()}

	m.mu.Lock()
	defer m.mu.Unlock()
	objects, ok := m.containers[container]
	if !ok {
		return ObjectReference{}, fmt.Errorf("memory: %w: %s", ErrContainerNotFound, container)
	}
	objects[name] = obj

	return m.reference(container, name, obj, DetailNone), nil
}

func (m *MemoryBackend) reference(container, name string, obj *memoryObject, detail ListingDetail) ObjectReference {
	sum := md5.Sum(obj.data)
	ref := ObjectReference{
		Container: container,
		Name:      name,
		Kind:      obj.kind,
		URL:       fmt.Sprintf("memory://%s/%s", container, name),
		Properties: ObjectProperties{
			ContentLength: int64(len(obj.data)),
			ContentType:   "application/octet-stream",
			ETag:          `"` + hex.EncodeToString(sum[:]) + `"`,
			LastModified:  obj.modified,
		},
	}
	if detail.Has(DetailMetadata) && len(obj.metadata) > 0 {
		ref.Metadata = make(map[string]string, len(obj.metadata))
		for k, v := range obj.metadata {
			ref.Metadata[k] = v
		}
	}
	return ref
}

// paginate returns the page of sorted items following the item named by token.
func paginate[T any](sorted []T, key func(T) string, token *string, size int) ([]T, *string) {
	start := 0
	if token != nil && *token != "" {
		start = sort.Search(len(sorted), func(i int) bool { return key(sorted[i]) > *token })
	}
	end := start + size
	if end >= len(sorted) {
		return sorted[start:], nil
	}
	next := key(sorted[end-1])
	return sorted[start:end], &next
}
