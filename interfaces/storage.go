package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrKeyNotFound is returned by KVStore.Get for an absent key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// KVStore maps string keys to opaque values. It offers no multi-key
// transactions; see BatchKVStore.
type KVStore interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string
}

type KVOpKind int

const (
	KVPut KVOpKind = iota
	KVDelete
)

func (k KVOpKind) String() string {
	switch k {
	case KVPut:
		return "put"
	case KVDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// KVOp is one step of an ordered write plan.
type KVOp struct {
	Kind  KVOpKind
	Key   string
	Value []byte
}

func PutOp(key string, value []byte) KVOp { return KVOp{Kind: KVPut, Key: key, Value: value} }

func DeleteOp(key string) KVOp { return KVOp{Kind: KVDelete, Key: key} }

// BatchKVStore is implemented by backends that can apply a write plan
// atomically: either every op is visible or none is.
type BatchKVStore interface {
	KVStore
	Apply(ctx context.Context, ops []KVOp) error
}

// KVLocation represents the URI selecting a KV backend.
type KVLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   *url.Userinfo
}

// NewKVLocation creates a location from a URI string with validation.
func NewKVLocation(uri string) (KVLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return KVLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "memory", "file", "redis", "rediss", "s3", "vault", "mongodb", "mongodb+srv", "postgres", "postgresql":
	default:
		return KVLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return KVLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   parsed.User,
	}, nil
}

// String returns the original URI string.
func (loc KVLocation) String() string {
	return loc.Raw
}

// Redacted returns the URI with any password masked.
func (loc KVLocation) Redacted() string {
	u, err := url.Parse(loc.Raw)
	if err != nil {
		return loc.Scheme + "://"
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "xxxxx")
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}

// GetParam returns a query parameter value.
func (loc KVLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc KVLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}
