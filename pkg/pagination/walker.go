// Package pagination drives sequential page loops against endpoints that
// signal exhaustion with an empty or short page.
package pagination

import "context"

// Walk calls fetch for page 1, 2, ... until fetch returns fewer items than
// pageSize (an empty page counts), fetch returns an error, or the context
// is cancelled. Pacing between pages is the transport's job, not Walk's.
func Walk(ctx context.Context, pageSize int, fetch func(page int) (int, error)) error {
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := fetch(page)
		if err != nil {
			return err
		}
		if n < pageSize {
			return nil
		}
	}
}
