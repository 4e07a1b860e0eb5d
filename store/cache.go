package store

import (
	"context"
	"sort"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
)

type cacheEntry struct {
	value   []byte
	deleted bool
}

// Cache buffers writes on top of a parent ReadWriter until Write is called.
// Reads see the buffered writes. Dropping a Cache discards them.
type Cache struct {
	parent ReadWriter
	writes map[ds.Key]cacheEntry
}

var _ ReadWriter = (*Cache)(nil)

// NewCache returns an empty Cache over parent.
func NewCache(parent ReadWriter) *Cache {
	return &Cache{parent: parent, writes: make(map[ds.Key]cacheEntry)}
}

// Get implements ds.Read.
func (c *Cache) Get(ctx context.Context, key ds.Key) ([]byte, error) {
	if e, ok := c.writes[key]; ok {
		if e.deleted {
			return nil, ds.ErrNotFound
		}
		return e.value, nil
	}
	return c.parent.Get(ctx, key)
}

// Has implements ds.Read.
func (c *Cache) Has(ctx context.Context, key ds.Key) (bool, error) {
	if e, ok := c.writes[key]; ok {
		return !e.deleted, nil
	}
	return c.parent.Has(ctx, key)
}

// GetSize implements ds.Read.
func (c *Cache) GetSize(ctx context.Context, key ds.Key) (int, error) {
	if e, ok := c.writes[key]; ok {
		if e.deleted {
			return -1, ds.ErrNotFound
		}
		return len(e.value), nil
	}
	return c.parent.GetSize(ctx, key)
}

// Query implements ds.Read. Buffered writes are merged into the parent's
// results before filters, orders and limits of q are applied.
func (c *Cache) Query(ctx context.Context, q query.Query) (query.Results, error) {
	base := query.Query{Prefix: q.Prefix, KeysOnly: q.KeysOnly}
	res, err := c.parent.Query(ctx, base)
	if err != nil {
		return nil, err
	}
	entries, err := res.Rest()
	if err != nil {
		return nil, err
	}

	merged := entries[:0]
	for _, e := range entries {
		if _, ok := c.writes[ds.RawKey(e.Key)]; !ok {
			merged = append(merged, e)
		}
	}
	for k, e := range c.writes {
		if e.deleted {
			continue
		}
		entry := query.Entry{Key: k.String(), Size: len(e.value)}
		if !q.KeysOnly {
			entry.Value = e.value
		}
		merged = append(merged, entry)
	}
	return query.NaiveQueryApply(q, query.ResultsWithEntries(q, merged)), nil
}

// Put implements ds.Write.
func (c *Cache) Put(_ context.Context, key ds.Key, value []byte) error {
	c.writes[key] = cacheEntry{value: value}
	return nil
}

// Delete implements ds.Write.
func (c *Cache) Delete(_ context.Context, key ds.Key) error {
	c.writes[key] = cacheEntry{deleted: true}
	return nil
}

// Write applies the buffered writes to the parent in key order and empties
// the cache.
func (c *Cache) Write(ctx context.Context) error {
	keys := make([]ds.Key, 0, len(c.writes))
	for k := range c.writes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	for _, k := range keys {
		e := c.writes[k]
		var err error
		if e.deleted {
			err = c.parent.Delete(ctx, k)
		} else {
			err = c.parent.Put(ctx, k, e.value)
		}
		if err != nil {
			return err
		}
	}
	c.writes = make(map[ds.Key]cacheEntry)
	return nil
}
