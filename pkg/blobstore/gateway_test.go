package blobstore

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/photo-gallery/pkg/errors"
	"github.com/yourorg/photo-gallery/pkg/logging"
)

// scriptedBackend serves pre-built pages in call order and records every token it sees.
type scriptedBackend struct {
	mu sync.Mutex

	containerPages []Page[string]
	objectPages    []Page[ObjectReference]
	failAt         int // call index that returns err; -1 disables
	err            error

	calls   int
	tokens  []*string
	queries []SegmentQuery

	uploadErr error
	uploaded  map[string][]byte
	onFetch   func(call int)
}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{failAt: -1, uploaded: make(map[string][]byte)}
}

// chain links pages with tokens "t1", "t2", ... and leaves the last one without a token.
func chain[T any](pages ...[]T) []Page[T] {
	out := make([]Page[T], len(pages))
	for i, items := range pages {
		out[i].Items = items
		if i < len(pages)-1 {
			tok := "t" + strconv.Itoa(i+1)
			out[i].Next = &tok
		}
	}
	return out
}

func blocks(names ...string) []ObjectReference {
	refs := make([]ObjectReference, len(names))
	for i, n := range names {
		refs[i] = ObjectReference{Container: "photos", Name: n, Kind: KindBlock}
	}
	return refs
}

func (s *scriptedBackend) record(token *string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.calls
	s.calls++
	if token == nil {
		s.tokens = append(s.tokens, nil)
	} else {
		tok := *token
		s.tokens = append(s.tokens, &tok)
	}
	if s.onFetch != nil {
		s.onFetch(call)
	}
	if call == s.failAt {
		return call, s.err
	}
	return call, nil
}

func (s *scriptedBackend) ListContainersSegment(ctx context.Context, token *string) (Page[string], error) {
	call, err := s.record(token)
	if err != nil {
		return Page[string]{}, err
	}
	return s.containerPages[call], nil
}

func (s *scriptedBackend) ListObjectsSegment(ctx context.Context, container string, query SegmentQuery, token *string) (Page[ObjectReference], error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()

	call, err := s.record(token)
	if err != nil {
		return Page[ObjectReference]{}, err
	}
	page := s.objectPages[call]
	if query.Prefix == "" {
		return page, nil
	}
	filtered := Page[ObjectReference]{Next: page.Next}
	for _, obj := range page.Items {
		if strings.HasPrefix(obj.Name, query.Prefix) {
			filtered.Items = append(filtered.Items, obj)
		}
	}
	return filtered, nil
}

func (s *scriptedBackend) UploadBlockObject(ctx context.Context, container, name string, content io.Reader) (ObjectReference, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return ObjectReference{}, err
	}
	if s.uploadErr != nil {
		return ObjectReference{}, s.uploadErr
	}
	s.mu.Lock()
	s.uploaded[container+"/"+name] = data
	s.mu.Unlock()
	return ObjectReference{URL: "scripted://" + container + "/" + name}, nil
}

func newTestGateway(t *testing.T, b Backend) *Gateway {
	t.Helper()
	gw, err := NewGateway(b, logging.NewNopLogger())
	require.NoError(t, err)
	return gw
}

func names(refs []ObjectReference) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Name
	}
	return out
}

func TestNewGateway_RequiresBackend(t *testing.T) {
	_, err := NewGateway(nil, nil)
	assert.Error(t, err)

	gw, err := NewGateway(NewMemoryBackend(), nil)
	require.NoError(t, err)
	assert.NotNil(t, gw.logger)
}

func TestListContainerNames_YieldsEveryPageInOrder(t *testing.T) {
	b := newScriptedBackend()
	b.containerPages = chain([]string{"a", "b"}, []string{"c"}, []string{"d", "e"})
	gw := newTestGateway(t, b)

	it := gw.ListContainerNames(context.Background())
	got, err := Collect(it, 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
	assert.Equal(t, 3, it.Fetches())
	require.Len(t, b.tokens, 3)
	assert.Nil(t, b.tokens[0])
	assert.Equal(t, "t1", *b.tokens[1])
	assert.Equal(t, "t2", *b.tokens[2])
}

func TestListContainerNames_NoContainers(t *testing.T) {
	b := newScriptedBackend()
	b.containerPages = chain([]string{})
	gw := newTestGateway(t, b)

	it := gw.ListContainerNames(context.Background())
	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
	assert.Equal(t, 1, it.Fetches())
}

func TestListContainerNames_FirstItemIssuesOneRoundTrip(t *testing.T) {
	b := newScriptedBackend()
	b.containerPages = chain([]string{"a", "b"}, []string{"c"})
	gw := newTestGateway(t, b)

	it := gw.ListContainerNames(context.Background())
	first, err := Collect(it, 1)

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, first)
	assert.Equal(t, 1, b.calls)

	// The second page is only requested once the first is exhausted.
	require.True(t, it.Next())
	assert.Equal(t, 1, b.calls)
	require.True(t, it.Next())
	assert.Equal(t, "c", it.Value())
	assert.Equal(t, 2, b.calls)
}

func TestListContainerNames_EmptyPageWithTokenContinues(t *testing.T) {
	b := newScriptedBackend()
	b.containerPages = chain([]string{}, []string{}, []string{"z"})
	gw := newTestGateway(t, b)

	got, err := Collect(gw.ListContainerNames(context.Background()), 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, got)
	assert.Equal(t, 3, b.calls)
}

func TestListContainerNames_EmptyTokenEndsListing(t *testing.T) {
	b := newScriptedBackend()
	empty := ""
	b.containerPages = []Page[string]{{Items: []string{"a"}, Next: &empty}}
	gw := newTestGateway(t, b)

	got, err := Collect(gw.ListContainerNames(context.Background()), 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 1, b.calls)
}

func TestListContainerNames_CancelMidPage(t *testing.T) {
	b := newScriptedBackend()
	b.containerPages = chain([]string{"a", "b", "c"}, []string{"d"})
	gw := newTestGateway(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	it := gw.ListContainerNames(ctx)

	var got []string
	for it.Next() {
		got = append(got, it.Value())
		if len(got) == 2 {
			cancel()
		}
	}

	assert.Equal(t, []string{"a", "b"}, got)
	require.Error(t, it.Err())
	assert.True(t, errors.IsCancelled(it.Err()))
	assert.Equal(t, 1, b.calls)
	assert.False(t, it.Next(), "iterator stays finished")
}

func TestListContainerNames_CancelledBeforeStart(t *testing.T) {
	b := newScriptedBackend()
	b.containerPages = chain([]string{"a"})
	gw := newTestGateway(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collect(gw.ListContainerNames(ctx), 0)

	assert.True(t, errors.HasCode(err, errors.ErrorCodeCancelled))
	assert.Equal(t, 0, b.calls)
}

func TestListContainerNames_CancelDuringFetch(t *testing.T) {
	b := newScriptedBackend()
	b.containerPages = chain([]string{"a"}, []string{"b"})
	ctx, cancel := context.WithCancel(context.Background())
	b.onFetch = func(call int) {
		if call == 1 {
			cancel()
		}
	}
	b.failAt = 1
	b.err = context.Canceled
	gw := newTestGateway(t, b)

	got, err := Collect(gw.ListContainerNames(ctx), 0)

	assert.Equal(t, []string{"a"}, got)
	assert.True(t, errors.IsCancelled(err))
}

func TestListContainerNames_FetchFailureIsListingError(t *testing.T) {
	b := newScriptedBackend()
	b.containerPages = chain([]string{"a", "b"}, []string{"c"})
	b.failAt = 1
	b.err = stderrors.New("connection reset")
	gw := newTestGateway(t, b)

	got, err := Collect(gw.ListContainerNames(context.Background()), 0)

	assert.Equal(t, []string{"a", "b"}, got)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrorCodeListing))
	assert.ErrorIs(t, err, b.err)
	assert.Equal(t, http.StatusBadGateway, errors.FromError(err).HTTPStatus)
}

func TestListObjects_PhotosTwoPages(t *testing.T) {
	b := newScriptedBackend()
	tok := "X"
	b.objectPages = []Page[ObjectReference]{
		{Items: blocks("a.jpg", "b.jpg"), Next: &tok},
		{Items: blocks("c.jpg")},
	}
	gw := newTestGateway(t, b)

	it := gw.ListObjects(context.Background(), "photos", KindBlock)
	got, err := Collect(it, 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, names(got))
	assert.Equal(t, 2, it.Fetches())
	require.Len(t, b.tokens, 2)
	assert.Equal(t, "X", *b.tokens[1])
}

func TestListObjects_PrefixIsSentWithEveryRequest(t *testing.T) {
	b := newScriptedBackend()
	b.objectPages = chain(blocks("2023/x.jpg", "2022/y.jpg"))
	gw := newTestGateway(t, b)

	got, err := Collect(gw.ListObjects(context.Background(), "photos", KindAny,
		WithPrefix("2023/"), WithPageSizeHint(50), WithListingDetail(DetailMetadata)), 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"2023/x.jpg"}, names(got))
	require.Len(t, b.queries, 1)
	assert.Equal(t, SegmentQuery{Prefix: "2023/", MaxResults: 50, Detail: DetailMetadata}, b.queries[0])
}

func TestListObjects_PageSizeHintIgnoresNonPositive(t *testing.T) {
	var q SegmentQuery
	WithPageSizeHint(0)(&q)
	WithPageSizeHint(-3)(&q)
	assert.Equal(t, int32(0), q.MaxResults)
}

func TestListObjects_KindFilter(t *testing.T) {
	mixed := func() []Page[ObjectReference] {
		return chain(
			[]ObjectReference{
				{Name: "a", Kind: KindBlock},
				{Name: "b", Kind: KindPage},
				{Name: "c", Kind: KindAppend},
			},
			[]ObjectReference{
				{Name: "d", Kind: KindPage},
				{Name: "e", Kind: KindPage},
			},
			[]ObjectReference{
				{Name: "f", Kind: KindBlock},
			},
		)
	}

	tests := []struct {
		kind ObjectKind
		want []string
	}{
		{KindBlock, []string{"a", "f"}},
		{KindPage, []string{"b", "d", "e"}},
		{KindAppend, []string{"c"}},
		{KindAny, []string{"a", "b", "c", "d", "e", "f"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			b := newScriptedBackend()
			b.objectPages = mixed()
			gw := newTestGateway(t, b)

			it := gw.ListObjects(context.Background(), "photos", tt.kind)
			got, err := Collect(it, 0)

			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
			assert.Equal(t, 3, it.Fetches(), "filtering must not change round trips")
		})
	}
}

func TestListObjects_EmptyContainerName(t *testing.T) {
	b := newScriptedBackend()
	gw := newTestGateway(t, b)

	it := gw.ListObjects(context.Background(), "  ", KindBlock)

	assert.False(t, it.Next())
	assert.True(t, errors.HasCode(it.Err(), errors.ErrorCodeValidation))
	assert.Equal(t, 0, b.calls)
}

func TestListObjects_MissingContainer(t *testing.T) {
	b := newScriptedBackend()
	b.failAt = 0
	b.err = ErrContainerNotFound
	gw := newTestGateway(t, b)

	_, err := Collect(gw.ListObjects(context.Background(), "nope", KindBlock), 0)

	require.Error(t, err)
	appErr := errors.FromError(err)
	assert.Equal(t, errors.ErrorCodeListing, appErr.Code)
	assert.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestListObjects_AllSequence(t *testing.T) {
	b := newScriptedBackend()
	b.objectPages = chain(blocks("a", "b"), blocks("c"))
	b.failAt = 1
	b.err = stderrors.New("boom")
	gw := newTestGateway(t, b)

	var got []string
	var gotErr error
	for obj, err := range gw.ListObjects(context.Background(), "photos", KindBlock).All() {
		if err != nil {
			gotErr = err
			break
		}
		got = append(got, obj.Name)
	}

	assert.Equal(t, []string{"a", "b"}, got)
	assert.True(t, errors.HasCode(gotErr, errors.ErrorCodeListing))
}

func TestUpload_Success(t *testing.T) {
	b := newScriptedBackend()
	gw := newTestGateway(t, b)

	ref, err := gw.Upload(context.Background(), "photos", strings.NewReader("jpegdata"), "cat.jpg")

	require.NoError(t, err)
	assert.Equal(t, "photos", ref.Container)
	assert.Equal(t, "cat.jpg", ref.Name)
	assert.Equal(t, KindBlock, ref.Kind)
	assert.Equal(t, int64(8), ref.Properties.ContentLength)
	assert.Equal(t, "scripted://photos/cat.jpg", ref.URL)
	assert.Equal(t, []byte("jpegdata"), b.uploaded["photos/cat.jpg"])
}

func TestUpload_Validation(t *testing.T) {
	gw := newTestGateway(t, newScriptedBackend())

	tests := []struct {
		name      string
		container string
		object    string
		content   io.Reader
	}{
		{"missing container", "", "a.jpg", strings.NewReader("x")},
		{"missing name", "photos", "", strings.NewReader("x")},
		{"missing content", "photos", "a.jpg", nil},
		{"name too long", "photos", strings.Repeat("n", 1025), strings.NewReader("x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gw.Upload(context.Background(), tt.container, tt.content, tt.object)
			assert.True(t, errors.HasCode(err, errors.ErrorCodeValidation))
		})
	}
}

func TestUpload_BackendFailureIsTransferError(t *testing.T) {
	b := newScriptedBackend()
	b.uploadErr = stderrors.New("503 server busy")
	gw := newTestGateway(t, b)

	_, err := gw.Upload(context.Background(), "photos", strings.NewReader("x"), "a.jpg")

	require.Error(t, err)
	appErr := errors.FromError(err)
	assert.Equal(t, errors.ErrorCodeTransfer, appErr.Code)
	assert.Equal(t, http.StatusBadGateway, appErr.HTTPStatus)
	assert.ErrorIs(t, err, b.uploadErr)
}

func TestUpload_MissingContainer(t *testing.T) {
	gw := newTestGateway(t, NewMemoryBackend())

	_, err := gw.Upload(context.Background(), "nope", strings.NewReader("x"), "a.jpg")

	require.Error(t, err)
	appErr := errors.FromError(err)
	assert.Equal(t, errors.ErrorCodeTransfer, appErr.Code)
	assert.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
	assert.Equal(t, "nope", appErr.Details["container"])
}

func TestUpload_Cancelled(t *testing.T) {
	b := NewMemoryBackend()
	b.CreateContainer("photos")
	gw := newTestGateway(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.Upload(ctx, "photos", strings.NewReader("x"), "a.jpg")

	assert.True(t, errors.IsCancelled(err))
	_, stored := b.Get("photos", "a.jpg")
	assert.False(t, stored)
}

func TestUpload_VisibleToNextListing(t *testing.T) {
	b := NewMemoryBackend(WithMemoryPageSize(2))
	b.CreateContainer("photos")
	b.Put("photos", "a.jpg", KindBlock, []byte("a"), nil)
	b.Put("photos", "b.jpg", KindBlock, []byte("b"), nil)
	b.Put("photos", "c.jpg", KindBlock, []byte("c"), nil)
	gw := newTestGateway(t, b)

	_, err := gw.Upload(context.Background(), "photos", strings.NewReader("new"), "bb.jpg")
	require.NoError(t, err)

	got, err := Collect(gw.ListObjects(context.Background(), "photos", KindBlock), 0)
	require.NoError(t, err)
	assert.Contains(t, names(got), "bb.jpg")
}

func TestUpload_OverwritesExisting(t *testing.T) {
	b := NewMemoryBackend()
	b.CreateContainer("photos")
	gw := newTestGateway(t, b)

	_, err := gw.Upload(context.Background(), "photos", strings.NewReader("v1"), "a.jpg")
	require.NoError(t, err)
	_, err = gw.Upload(context.Background(), "photos", strings.NewReader("v2"), "a.jpg")
	require.NoError(t, err)

	data, ok := b.Get("photos", "a.jpg")
	require.True(t, ok)
	assert.Equal(t, "v2", string(data))

	got, err := Collect(gw.ListObjects(context.Background(), "photos", KindAny), 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
