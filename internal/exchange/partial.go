package exchange

import "context"

// Partial is the result of a batch where items succeed or fail on their own.
type Partial[T any] struct {
	Kept   []T
	Failed []error
}

// Sequential runs fn over items one at a time, collecting successes and
// failures separately. Once ctx is done the remaining items are recorded as
// failed without calling fn.
func Sequential[In, Out any](ctx context.Context, items []In, fn func(context.Context, In) (Out, error)) Partial[Out] {
	res := Partial[Out]{Kept: make([]Out, 0, len(items))}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			res.Failed = append(res.Failed, err)
			continue
		}
		out, err := fn(ctx, item)
		if err != nil {
			res.Failed = append(res.Failed, err)
			continue
		}
		res.Kept = append(res.Kept, out)
	}
	return res
}
