package core

import (
	"context"
	"iter"
	"math"
)

// Page is one pull from a Pager. Done marks the last page of the sequence.
type Page[T any] struct {
	Items []T
	Done  bool
}

// Pager is a forward-only sequence of pages. Next must not be called
// concurrently on the same Pager.
type Pager[T any] interface {
	Next(ctx context.Context) (Page[T], error)
}

// RangeFetch returns every row whose range key lies in [from, to], ascending.
type RangeFetch[T any] func(ctx context.Context, from, to int64) ([]T, error)

// RangeCursor pages through a value range without knowing the row count in
// advance. Each pull asks for a window one value wider than the page; an
// overflow row means there is more to read.
type RangeCursor[T any] struct {
	fetch    RangeFetch[T]
	to       Bound
	pageSize int

	nextFrom int64
	done     bool
}

// NewRangeCursor validates the arguments eagerly, before any fetch happens.
func NewRangeCursor[T any](from int64, to Bound, pageSize int, fetch RangeFetch[T]) (*RangeCursor[T], error) {
	if err := ValidateRange(from, to); err != nil {
		return nil, err
	}
	if err := ValidatePageSize(pageSize); err != nil {
		return nil, err
	}
	return &RangeCursor[T]{
		fetch:    fetch,
		to:       to,
		pageSize: pageSize,
		nextFrom: from,
	}, nil
}

// Next pulls the next page. Once the cursor is exhausted it keeps returning an
// empty final page. A fetch error leaves the cursor where it was.
func (c *RangeCursor[T]) Next(ctx context.Context) (Page[T], error) {
	if c.done {
		return Page[T]{Done: true}, nil
	}

	nextTo := c.nextFrom + int64(c.pageSize)
	if nextTo < c.nextFrom {
		nextTo = math.MaxInt64
	}
	if limit, ok := c.to.Value(); ok {
		nextTo = min(nextTo, limit)
	}

	items, err := c.fetch(ctx, c.nextFrom, nextTo)
	if err != nil {
		return Page[T]{}, err
	}

	if len(items) > c.pageSize {
		// the lower bound moves by the window width, not by the rows seen
		c.nextFrom = nextTo
		return Page[T]{Items: items[:c.pageSize]}, nil
	}

	c.done = true
	return Page[T]{Items: items, Done: true}, nil
}

// OffsetFetch returns at most limit rows after skipping offset rows.
type OffsetFetch[T any] func(ctx context.Context, limit, offset int) ([]T, error)

// OffsetCursor pages by limit/offset. Rows inserted ahead of the current
// offset between two pulls shift the window, so a page may repeat or skip
// rows when the log is written concurrently.
type OffsetCursor[T any] struct {
	fetch    OffsetFetch[T]
	pageSize int

	offset int
	done   bool
}

func NewOffsetCursor[T any](pageSize int, fetch OffsetFetch[T]) (*OffsetCursor[T], error) {
	if err := ValidatePageSize(pageSize); err != nil {
		return nil, err
	}
	return &OffsetCursor[T]{
		fetch:    fetch,
		pageSize: pageSize,
	}, nil
}

func (c *OffsetCursor[T]) Next(ctx context.Context) (Page[T], error) {
	if c.done {
		return Page[T]{Done: true}, nil
	}

	items, err := c.fetch(ctx, c.pageSize+1, c.offset)
	if err != nil {
		return Page[T]{}, err
	}
	c.offset += c.pageSize

	if len(items) > c.pageSize {
		return Page[T]{Items: items[:c.pageSize]}, nil
	}

	c.done = true
	return Page[T]{Items: items, Done: true}, nil
}

// Pages adapts a Pager to a range-over-func sequence. Iteration stops after
// the final page or the first error.
func Pages[T any](ctx context.Context, p Pager[T]) iter.Seq2[Page[T], error] {
	return func(yield func(Page[T], error) bool) {
		for {
			page, err := p.Next(ctx)
			if err != nil {
				yield(page, err)
				return
			}
			if !yield(page, nil) || page.Done {
				return
			}
		}
	}
}

// Collect drains p and returns every item in order.
func Collect[T any](ctx context.Context, p Pager[T]) ([]T, error) {
	var all []T
	for page, err := range Pages(ctx, p) {
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
	}
	return all, nil
}
