package chat

import (
	"context"
	"fmt"
)

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}

// closeOnDone closes the stream once ctx is done so a blocked Read returns.
func closeOnDone(ctx context.Context, closeStream func() error) (stop func() bool) {
	return context.AfterFunc(ctx, func() { _ = closeStream() })
}
