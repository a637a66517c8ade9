// Package results carries the outcome of a service operation: a success payload,
// a domain failure, or neither when an infrastructure error was returned alongside.
package results

// OperationResult holds either a success value of type S or a failure value of type F.
type OperationResult[S any, F any] struct {
	Success *S
	Failure *F
}

// SuccessResult builds a result holding a success payload.
func SuccessResult[S any, F any](s S) OperationResult[S, F] {
	return OperationResult[S, F]{Success: &s}
}

// FailureResult builds a result holding a domain failure.
func FailureResult[S any, F any](f F) OperationResult[S, F] {
	return OperationResult[S, F]{Failure: &f}
}

func (r OperationResult[S, F]) IsSuccess() bool { return r.Success != nil }

func (r OperationResult[S, F]) IsFailure() bool { return r.Failure != nil }

// Map converts the success payload with fn and keeps any failure as is.
func Map[S any, F any, T any](r OperationResult[S, F], fn func(S) T) OperationResult[T, F] {
	switch {
	case r.Success != nil:
		return SuccessResult[T, F](fn(*r.Success))
	case r.Failure != nil:
		return FailureResult[T, F](*r.Failure)
	default:
		return OperationResult[T, F]{}
	}
}
