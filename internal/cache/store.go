package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var ErrNotFound = errors.New("cache object not found")

// Type mirrors the fetch response type. Only basic responses are captured on
// demand.
type Type string

const (
	TypeBasic  Type = "basic"
	TypeOpaque Type = "opaque"
)

// Response is a stored snapshot of an origin response.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Type     Type
	StoredAt time.Time
}

// Clone returns a deep copy so callers can mutate headers or bodies freely.
func (r Response) Clone() Response {
	out := r
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}

type Entry struct {
	Key      string
	Response Response
}

// Store holds named cache generations. Each generation maps request
// identities to response snapshots.
type Store interface {
	// Open creates the generation if it does not exist yet.
	Open(ctx context.Context, generation string) error
	Match(ctx context.Context, generation, key string) (Response, error)
	Put(ctx context.Context, generation, key string, resp Response) error
	// PutAll stores every entry or none of them.
	PutAll(ctx context.Context, generation string, entries []Entry) error
	Generations(ctx context.Context) ([]string, error)
	// Delete removes a whole generation. Deleting a missing generation is
	// not an error.
	Delete(ctx context.Context, generation string) error
}
