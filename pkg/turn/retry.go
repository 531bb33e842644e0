package turn

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/samaira-ai/voicegate/pkg/engine"
)

// retryPolicy allows exactly one retry after a short backoff. Engines are
// shared rate-limited services; more than one retry just piles on.
func retryPolicy(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = time.Second
	return backoff.WithContext(backoff.WithMaxRetries(bo, 1), ctx)
}

// retryGenerator retries the initial generation call once on transient
// failure. Mid-stream failures are not retried: tokens already sent to the
// client cannot be retracted.
type retryGenerator struct {
	inner engine.Generator
}

func (g retryGenerator) Generate(ctx context.Context, history []engine.Message, userText string) (engine.TokenStream, error) {
	var stream engine.TokenStream
	op := func() error {
		s, err := g.inner.Generate(ctx, history, userText)
		if err != nil {
			if engine.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		stream = s
		return nil
	}
	if err := backoff.Retry(op, retryPolicy(ctx)); err != nil {
		return nil, err
	}
	return stream, nil
}
