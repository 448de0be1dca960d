package api

import "sync/atomic"

// Usage counts tokens and calls across requests. It is safe for concurrent use.
type Usage struct {
	input  atomic.Int64
	output atomic.Int64
	calls  atomic.Int64
}

func (u *Usage) record(input, output int64) {
	u.input.Add(input)
	u.output.Add(output)
	u.calls.Add(1)
}

// Tokens returns the input and output tokens billed so far.
func (u *Usage) Tokens() (input, output int64) {
	return u.input.Load(), u.output.Load()
}

// Calls is the number of successful requests.
func (u *Usage) Calls() int64 { return u.calls.Load() }
