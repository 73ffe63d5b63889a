package resolver

import "context"

// Response is a completed backend exchange with a 2xx status.
type Response struct {
	StatusCode int
	Body       []byte
}

// Call performs one backend exchange. Transport failures and non-2xx
// statuses are both returned as errors.
type Call func(ctx context.Context) (*Response, error)

// Outcome is the tagged result of a call run under RetryAfterReauth.
type Outcome struct {
	Response *Response
	Err      error
	Attempts int
}

// OK reports whether the final attempt succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Response != nil
}

// RetryAfterReauth runs call once. If it fails, reauth runs exactly once and
// call is retried exactly once; the retry's result is final. There is no backoff.
func RetryAfterReauth(ctx context.Context, call Call, reauth func(context.Context)) Outcome {
	resp, err := call(ctx)
	if err == nil {
		return Outcome{Response: resp, Attempts: 1}
	}

	reauth(ctx)

	resp, err = call(ctx)
	if err != nil {
		return Outcome{Err: err, Attempts: 2}
	}
	return Outcome{Response: resp, Attempts: 2}
}
