package blobstore

import (
	"errors"
	"strings"
	"time"
)

// ErrContainerNotFound is wrapped by backends when the target container does not exist.
var ErrContainerNotFound = errors.New("container not found")

// ObjectKind tags the storage subtype of a listed object.
type ObjectKind string

const (
	// KindAny matches every object when used as a listing filter.
	KindAny ObjectKind = ""
	// KindBlock is a block blob (and every plain S3 object).
	KindBlock ObjectKind = "BlockBlob"
	// KindPage is a page blob.
	KindPage ObjectKind = "PageBlob"
	// KindAppend is an append blob.
	KindAppend ObjectKind = "AppendBlob"
)

// Matches reports whether an object of kind other passes a filter on k.
func (k ObjectKind) Matches(other ObjectKind) bool {
	return k == KindAny || k == other
}

// ParseObjectKind maps the short names used by the HTTP API to a kind.
func ParseObjectKind(s string) (ObjectKind, bool) {
	switch strings.ToLower(s) {
	case "", "block", "blockblob":
		return KindBlock, true
	case "page", "pageblob":
		return KindPage, true
	case "append", "appendblob":
		return KindAppend, true
	case "any", "all":
		return KindAny, true
	}
	return KindAny, false
}

// ListingDetail selects optional per-item metadata returned by object listings.
// It never changes which items are listed.
type ListingDetail uint8

const (
	DetailNone        ListingDetail = 0
	DetailSnapshots   ListingDetail = 1 << 0
	DetailMetadata    ListingDetail = 1 << 1
	DetailUncommitted ListingDetail = 1 << 2
	DetailCopy        ListingDetail = 1 << 3
	DetailDeleted     ListingDetail = 1 << 4
	DetailAll                       = DetailSnapshots | DetailMetadata | DetailUncommitted | DetailCopy | DetailDeleted
)

var detailNames = []struct {
	name string
	flag ListingDetail
}{
	{"snapshots", DetailSnapshots},
	{"metadata", DetailMetadata},
	{"uncommitted", DetailUncommitted},
	{"copy", DetailCopy},
	{"deleted", DetailDeleted},
}

// Has reports whether every flag in f is set.
func (d ListingDetail) Has(f ListingDetail) bool {
	return d&f == f
}

// String renders the set flags as a comma separated list.
func (d ListingDetail) String() string {
	var parts []string
	for _, n := range detailNames {
		if d.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// ParseListingDetail parses a comma separated list such as "metadata,copy".
func ParseListingDetail(s string) (ListingDetail, error) {
	var d ListingDetail
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		switch part {
		case "", "none":
			continue
		case "all":
			d |= DetailAll
			continue
		}
		found := false
		for _, n := range detailNames {
			if n.name == part {
				d |= n.flag
				found = true
				break
			}
		}
		if !found {
			return DetailNone, errors.New("unknown listing detail " + part)
		}
	}
	return d, nil
}

// ObjectProperties holds the per-object system properties reported by the service.
type ObjectProperties struct {
	ContentLength int64     `json:"content_length"`
	ContentType   string    `json:"content_type,omitempty"`
	ETag          string    `json:"etag,omitempty"`
	LastModified  time.Time `json:"last_modified,omitempty"`
	CopyStatus    string    `json:"copy_status,omitempty"`
}

// ObjectReference is a named handle to an object inside a container.
type ObjectReference struct {
	Container  string            `json:"container"`
	Name       string            `json:"name"`
	Kind       ObjectKind        `json:"kind"`
	URL        string            `json:"url,omitempty"`
	Snapshot   string            `json:"snapshot,omitempty"`
	Deleted    bool              `json:"deleted,omitempty"`
	Properties ObjectProperties  `json:"properties"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SegmentQuery parameterises one object listing round trip.
type SegmentQuery struct {
	Prefix string
	// MaxResults bounds the items per page; zero lets the provider choose.
	MaxResults int32
	Detail     ListingDetail
}
