package main

import (
	"context"
	"os/signal"
)

// notifyContext cancels the import on a stop signal. The document in flight
// fails with its pandoc process killed, and the batch reports what it wrote.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, stopSignals...)
}
