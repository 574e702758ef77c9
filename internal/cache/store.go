package cache

import (
	"context"
	"fmt"

	"github.com/objectfs/cachingfs/pkg/async"
)

// Lookup is the outcome of a single-key Get. Found is false when the key is absent.
type Lookup[V any] struct {
	Value V
	Found bool
}

// Store is a namespaced key/value cache. Implementations are safe for concurrent use
// and treat stored values as immutable snapshots.
type Store[V any] interface {
	Get(ctx context.Context, key string) *async.Result[Lookup[V]]
	// GetMulti resolves to the subset of keys that are present.
	GetMulti(ctx context.Context, keys []string) *async.Result[map[string]V]
	Set(ctx context.Context, key string, value V) error
	SetMulti(ctx context.Context, values map[string]V) error
	Delete(ctx context.Context, keys ...string) error
}

// Factory creates byte-level stores for a namespace. When startEmpty is false the
// store may come back pre-populated with state persisted under the same namespace;
// when true any such state is discarded.
type Factory interface {
	Create(namespace string, startEmpty bool) (Store[[]byte], error)
}

// Namespace builds the key under which a consumer's store of one category lives.
func Namespace(identity, category string) string {
	return identity + "/" + category
}

// Typed adapts a byte-level store to values of type V using the CBOR codec.
type Typed[V any] struct {
	raw Store[[]byte]
}

// NewTyped wraps raw so that values are CBOR encoded on Set and decoded on Get.
func NewTyped[V any](raw Store[[]byte]) *Typed[V] {
	return &Typed[V]{raw: raw}
}

// Get returns the decoded value for key. A value that fails to decode is reported
// as absent so the caller refetches it.
func (t *Typed[V]) Get(ctx context.Context, key string) *async.Result[Lookup[V]] {
	return async.Then(t.raw.Get(ctx, key), func(l Lookup[[]byte]) (Lookup[V], error) {
		if !l.Found {
			return Lookup[V]{}, nil
		}
		var v V
		if err := Unmarshal(l.Value, &v); err != nil {
			return Lookup[V]{}, nil
		}
		return Lookup[V]{Value: v, Found: true}, nil
	}, nil)
}

// GetMulti returns the decoded values for the present keys.
func (t *Typed[V]) GetMulti(ctx context.Context, keys []string) *async.Result[map[string]V] {
	return async.Then(t.raw.GetMulti(ctx, keys), func(raw map[string][]byte) (map[string]V, error) {
		out := make(map[string]V, len(raw))
		for k, data := range raw {
			var v V
			if err := Unmarshal(data, &v); err != nil {
				continue
			}
			out[k] = v
		}
		return out, nil
	}, nil)
}

// Set encodes and stores value under key.
func (t *Typed[V]) Set(ctx context.Context, key string, value V) error {
	data, err := Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return t.raw.Set(ctx, key, data)
}

// SetMulti encodes and stores every value.
func (t *Typed[V]) SetMulti(ctx context.Context, values map[string]V) error {
	encoded := make(map[string][]byte, len(values))
	for k, v := range values {
		data, err := Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %q: %w", k, err)
		}
		encoded[k] = data
	}
	return t.raw.SetMulti(ctx, encoded)
}

// Delete removes keys.
func (t *Typed[V]) Delete(ctx context.Context, keys ...string) error {
	return t.raw.Delete(ctx, keys...)
}
