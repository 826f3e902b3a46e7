package corpus

import (
	"io"
	"math/rand"

	"github.com/pkg/errors"
)

// Cache holds every batch of one corpus pass in memory.
type Cache struct {
	batches []*Batch
}

// BuildCache drains one full pass of src.
func BuildCache(src Source) (*Cache, error) {
	it, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	c := &Cache{}
	for {
		b, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "error building instance cache")
		}
		c.batches = append(c.batches, b)
	}
	return c, nil
}

// Len is the number of cached batches.
func (c *Cache) Len() int {
	return len(c.batches)
}

// Batches returns the cached batches in their current order.
func (c *Cache) Batches() []*Batch {
	return c.batches
}

// Shuffle permutes the cached batches in place.
func (c *Cache) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(c.batches), func(i, j int) {
		c.batches[i], c.batches[j] = c.batches[j], c.batches[i]
	})
}

// Iter yields the cached batches in their current order.
func (c *Cache) Iter() Iterator {
	return &sliceIterator{batches: c.batches}
}

type sliceIterator struct {
	batches []*Batch
	pos     int
}

func (it *sliceIterator) Next() (*Batch, error) {
	if it.pos >= len(it.batches) {
		return nil, io.EOF
	}
	b := it.batches[it.pos]
	it.pos++
	return b, nil
}

func (it *sliceIterator) Close() error {
	it.pos = len(it.batches)
	return nil
}
