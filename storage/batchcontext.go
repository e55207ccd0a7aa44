package storage

import "sort"

// batchContext layers a staging Batch in front of a base Context: reads
// check the batch's pending ops first and fall through to base, writes go
// only into the batch. This is how the grove layer's per-operation staging
// batch (spec.md §3.6, §4.4 Phase 4) gets handed to a merk.Tree without the
// tree ever writing straight through to the backing transaction — a failed
// grove operation can discard the batch and leave txn untouched.
type batchContext struct {
	base   Context
	batch  *Batch
	prefix [32]byte
}

// BatchContext returns a Context that reads through base (so it sees
// whatever base's own transaction/snapshot already holds) but stages every
// write into batch instead of writing through base directly.
func BatchContext(base Context, batch *Batch, prefix [32]byte) Context {
	return &batchContext{base: base, batch: batch, prefix: prefix}
}

func (c *batchContext) Get(cf CF, key []byte) ([]byte, error) {
	if v, deleted, ok := c.batch.Get(cf, c.prefix[:], key); ok {
		if deleted {
			return nil, nil
		}
		return v, nil
	}
	return c.base.Get(cf, key)
}

func (c *batchContext) Put(cf CF, key, value []byte) error {
	c.batch.Put(cf, c.prefix[:], key, value)
	return nil
}

func (c *batchContext) Delete(cf CF, key []byte) error {
	c.batch.Delete(cf, c.prefix[:], key)
	return nil
}

func (c *batchContext) Iterate(cf CF, fn func(key, value []byte) (bool, error)) error {
	physPrefix := EncodeKey(cf, c.prefix[:], nil)

	merged := make(map[string][]byte)
	if err := c.base.Iterate(cf, func(key, value []byte) (bool, error) {
		merged[string(EncodeKey(cf, c.prefix[:], key))] = append([]byte(nil), value...)
		return true, nil
	}); err != nil {
		return err
	}
	for _, pk := range c.batch.PhysicalKeys() {
		if len(pk) < len(physPrefix) || pk[:len(physPrefix)] != string(physPrefix) {
			continue
		}
		v, deleted, _ := c.batch.RawGet(pk)
		if deleted {
			delete(merged, pk)
		} else {
			merged[pk] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		orig := []byte(k)[len(physPrefix):]
		cont, err := fn(orig, merged[k])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (c *batchContext) Prefix() [32]byte {
	return c.prefix
}

// batchMeta is the CFMeta counterpart of batchContext.
type batchMeta struct {
	base  MetaContext
	batch *Batch
}

// BatchMetaContext returns a MetaContext that stages writes into batch the
// same way BatchContext does for a subtree Context.
func BatchMetaContext(base MetaContext, batch *Batch) MetaContext {
	return &batchMeta{base: base, batch: batch}
}

func (m *batchMeta) Get(key []byte) ([]byte, error) {
	if v, deleted, ok := m.batch.Get(CFMeta, nil, key); ok {
		if deleted {
			return nil, nil
		}
		return v, nil
	}
	return m.base.Get(key)
}

func (m *batchMeta) Put(key, value []byte) error {
	m.batch.Put(CFMeta, nil, key, value)
	return nil
}

func (m *batchMeta) Delete(key []byte) error {
	m.batch.Delete(CFMeta, nil, key)
	return nil
}
