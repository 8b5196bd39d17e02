package indexer

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// rangeCursor walks [from, to] in batches without materializing every range.
type rangeCursor struct {
	next  uint64
	to    uint64
	batch uint64
	done  bool
}

func newRangeCursor(from, to, batchSize uint64) (*rangeCursor, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}
	return &rangeCursor{next: from, to: to, batch: batchSize}, nil
}

// Next returns the following batch, or false once to has been covered.
func (c *rangeCursor) Next() (BlockRange, bool) {
	if c.done {
		return BlockRange{}, false
	}
	end := c.to
	if c.to-c.next >= c.batch {
		end = c.next + c.batch - 1
	}
	r := BlockRange{From: c.next, To: end}
	if end == c.to {
		c.done = true
	} else {
		c.next = end + 1
	}
	return r, true
}

// Remaining counts blocks not yet handed out.
func (c *rangeCursor) Remaining() uint64 {
	if c.done {
		return 0
	}
	return c.to - c.next + 1
}
