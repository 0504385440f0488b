package circuitbreaker

import "context"

// Execute 是 CallWithResult 的泛型版本，省去结果的类型断言
//
//	resp, err := circuitbreaker.Execute(cb, ctx, func(ctx context.Context) (*llm.ChatResponse, error) {
//	    return next(ctx, req)
//	})
func Execute[T any](cb CircuitBreaker, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	result, err := cb.CallWithResult(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if result == nil {
		var zero T
		return zero, nil
	}
	return result.(T), nil
}
