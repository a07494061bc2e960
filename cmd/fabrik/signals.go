package main

import (
	"context"
	"os/signal"
	"syscall"
)

// notifyContext cancels on SIGINT/SIGTERM so an in-flight run finishes
// with cancelled activities instead of being killed mid-write.
func notifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
