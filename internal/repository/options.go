package repository

import (
	apperrors "github.com/Proton-105/devotion/internal/errors"
)

// Option configures the Redis and PostgreSQL stores.
type Option func(*storeOptions)

type storeOptions struct {
	retry apperrors.RetryPolicy
}

func newStoreOptions(opts []Option) storeOptions {
	o := storeOptions{retry: apperrors.ConflictRetryPolicy}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithRetryPolicy sets how transactions that lost a write race are re-run.
func WithRetryPolicy(policy apperrors.RetryPolicy) Option {
	return func(o *storeOptions) {
		o.retry = policy
	}
}
