package checkpoint

import (
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

// Index is the set of processed document IDs, stored as 64-bit fingerprints. A
// fingerprint collision makes an unseen ID look processed; at 64 bits that needs
// billions of IDs to become likely. Safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	hashes map[uint64]struct{}
}

func NewIndex() *Index {
	return &Index{hashes: make(map[uint64]struct{})}
}

func (x *Index) Add(id string) {
	h := xxhash.Sum64String(id)
	x.mu.Lock()
	x.hashes[h] = struct{}{}
	x.mu.Unlock()
}

func (x *Index) Contains(id string) bool {
	h := xxhash.Sum64String(id)
	x.mu.RLock()
	_, ok := x.hashes[h]
	x.mu.RUnlock()
	return ok
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.hashes)
}

func (x *Index) MarshalJSON() ([]byte, error) {
	x.mu.RLock()
	hs := make([]uint64, 0, len(x.hashes))
	for h := range x.hashes {
		hs = append(hs, h)
	}
	x.mu.RUnlock()

	slices.Sort(hs)
	return json.Marshal(hs)
}

func (x *Index) UnmarshalJSON(b []byte) error {
	var hs []uint64
	if err := json.Unmarshal(b, &hs); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.hashes = make(map[uint64]struct{}, len(hs))
	for _, h := range hs {
		x.hashes[h] = struct{}{}
	}
	return nil
}
