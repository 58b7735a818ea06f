package domain

import "context"

type SubscriberRepository interface {
	Insert(ctx context.Context, s Subscriber) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
}
