package llm

import (
	"context"
	"time"
)

// CallObserver receives the outcome of each call: status is "ok" or "error".
type CallObserver func(operation, status string, elapsed time.Duration)

// Observed reports every call on the wrapped Completer under one operation
// name.
type Observed struct {
	next      Completer
	operation string
	observe   CallObserver
}

// NewObserved wraps next; a nil observe makes it a pass-through.
func NewObserved(next Completer, operation string, observe CallObserver) *Observed {
	return &Observed{next: next, operation: operation, observe: observe}
}

// Complete calls through and reports.
func (o *Observed) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	out, err := o.next.Complete(ctx, req)
	if o.observe != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.observe(o.operation, status, time.Since(start))
	}
	return out, err
}
