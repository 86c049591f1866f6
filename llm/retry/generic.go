package retry

import "context"

// DoWithResultTyped 是 Retryer.DoWithResult 的泛型包装，省去类型断言。
//
//	res, err := retry.DoWithResultTyped(r, ctx, func() (*regen.Result, error) {
//	    return regenerator.Regenerate(ctx, raw, contract, prompt, cfg)
//	})
func DoWithResultTyped[T any](r Retryer, ctx context.Context, fn func() (T, error)) (T, error) {
	result, err := r.DoWithResult(ctx, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, _ := result.(T)
	return typed, nil
}
