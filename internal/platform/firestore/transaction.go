package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	txDefaultMaxAttempts = 5
	txDefaultDeadline    = 15 * time.Second
)

// TxFunc is executed within a Firestore transaction.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption customises transaction behaviour.
type TxOption func(*txSettings)

type txSettings struct {
	maxAttempts int
	deadline    time.Duration
}

// WithTxAttempts caps the number of commit retries.
func WithTxAttempts(attempts int) TxOption {
	return func(s *txSettings) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

// WithTxTimeout bounds the total transaction time. A tighter deadline already
// present on the context wins.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(s *txSettings) {
		if timeout > 0 {
			s.deadline = timeout
		}
	}
}

// RunTransaction executes fn within a retried Firestore transaction, bounding
// it with a deadline and translating failures into repository error semantics.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	settings := txSettings{maxAttempts: txDefaultMaxAttempts, deadline: txDefaultDeadline}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	runCtx, cancel := boundedContext(ctx, settings.deadline)
	if cancel != nil {
		defer cancel()
	}

	err := client.RunTransaction(runCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, tx)
	}, firestore.MaxAttempts(settings.maxAttempts))

	return WrapError("transaction", err)
}

func boundedContext(ctx context.Context, limit time.Duration) (context.Context, context.CancelFunc) {
	if limit <= 0 {
		return ctx, nil
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= limit {
		return ctx, nil
	}
	return context.WithTimeout(ctx, limit)
}
