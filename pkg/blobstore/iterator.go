package blobstore

import (
	"context"
	"iter"

	"github.com/yourorg/photo-gallery/pkg/errors"
)

// FetchFunc performs exactly one round trip for the page identified by token.
type FetchFunc[T any] func(ctx context.Context, token *string) (Page[T], error)

// Iterator lazily walks a paginated listing. A page is fetched only once every item of
// the previous page has been consumed, and the consumer's context is checked before each
// element is produced.
//
// An Iterator is single-use and not safe for concurrent use:
//
//	it := gw.ListContainerNames(ctx)
//	for it.Next() {
//		fmt.Println(it.Value())
//	}
//	if err := it.Err(); err != nil {
//		return err
//	}
type Iterator[T any] struct {
	ctx   context.Context
	fetch FetchFunc[T]
	keep  func(T) bool
	label string

	buf     []T
	pos     int
	token   *string
	started bool
	done    bool

	cur     T
	err     error
	fetches int
}

// NewIterator builds an iterator over fetch. keep may be nil; when set, items for which it
// returns false are skipped without affecting how pages are fetched. label names the
// listing in error messages.
func NewIterator[T any](ctx context.Context, label string, fetch FetchFunc[T], keep func(T) bool) *Iterator[T] {
	return &Iterator[T]{ctx: ctx, fetch: fetch, keep: keep, label: label}
}

// failedIterator returns an iterator that yields nothing and reports err.
func failedIterator[T any](err error) *Iterator[T] {
	return &Iterator[T]{done: true, err: err}
}

// Next advances to the next element, fetching a new page when the buffered one is
// exhausted. It returns false when the listing is complete or an error occurred.
func (it *Iterator[T]) Next() bool {
	if it.done {
		return false
	}
	for {
		if err := it.ctx.Err(); err != nil {
			it.stop(errors.NewCancelledError(it.label+" cancelled", err))
			return false
		}

		if it.pos < len(it.buf) {
			item := it.buf[it.pos]
			it.pos++
			if it.keep != nil && !it.keep(item) {
				continue
			}
			it.cur = item
			return true
		}

		if it.started && it.token == nil {
			it.stop(nil)
			return false
		}

		page, err := it.fetch(it.ctx, it.token)
		it.fetches++
		it.started = true
		if err != nil {
			switch {
			case it.ctx.Err() != nil:
				it.stop(errors.NewCancelledError(it.label+" cancelled", it.ctx.Err()))
			case errors.HasCode(err, errors.ErrorCodeListing):
				it.stop(err)
			default:
				it.stop(errors.NewListingError("failed to "+it.label, err))
			}
			return false
		}

		it.buf, it.pos = page.Items, 0
		it.token = page.Next
		if it.token != nil && *it.token == "" {
			it.token = nil
		}
	}
}

// stop ends the iteration and drops any buffered items.
func (it *Iterator[T]) stop(err error) {
	var zero T
	it.done = true
	it.err = err
	it.buf = nil
	it.pos = 0
	it.cur = zero
}

// Value returns the element produced by the last successful call to Next.
func (it *Iterator[T]) Value() T {
	return it.cur
}

// Err returns the error that ended the iteration, if any. Cancellation is reported as
// an errors.ErrorCodeCancelled AppError, page fetch failures as errors.ErrorCodeListing.
func (it *Iterator[T]) Err() error {
	return it.err
}

// Fetches returns how many page round trips have been issued so far.
func (it *Iterator[T]) Fetches() int {
	return it.fetches
}

// All adapts the iterator to a range-over-func sequence. The terminal error, if any, is
// yielded last with a zero value.
func (it *Iterator[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for it.Next() {
			if !yield(it.Value(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// Collect drains up to limit elements (all of them when limit <= 0). Pages beyond the
// one holding the last requested element are never fetched.
func Collect[T any](it *Iterator[T], limit int) ([]T, error) {
	items := make([]T, 0)
	for (limit <= 0 || len(items) < limit) && it.Next() {
		items = append(items, it.Value())
	}
	return items, it.Err()
}
