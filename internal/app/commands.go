package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"newsletter/internal/adapters/observability"
	"newsletter/internal/domain"
)

type SubscriptionService struct {
	repo     domain.SubscriberRepository
	cache    domain.Cache
	dedupTTL time.Duration
	now      func() time.Time
}

func NewSubscriptionService(r domain.SubscriberRepository, c domain.Cache, ttl time.Duration) *SubscriptionService {
	return &SubscriptionService{repo: r, cache: c, dedupTTL: ttl, now: time.Now}
}

// WithClock overrides the timestamp source; tests only.
func (s *SubscriptionService) WithClock(now func() time.Time) *SubscriptionService {
	s.now = now
	return s
}

func subscriberKey(email string) string { return "subscriber:" + email }

// Subscribe validates the form values and stores a new subscriber. A recent
// subscription cached for the same email short-circuits to ErrDuplicate
// without a database round trip; the UNIQUE index remains the authority.
func (s *SubscriptionService) Subscribe(ctx context.Context, name, email string) (domain.Subscriber, error) {
	log := zerolog.Ctx(ctx)

	sub, err := domain.NewSubscriber(name, email, s.now())
	if err != nil {
		observability.ObserveSubscription("invalid")
		return domain.Subscriber{}, err
	}

	if s.cache != nil {
		var id string
		hit, err := s.cache.Get(ctx, subscriberKey(sub.Email), &id)
		if err != nil {
			log.Warn().Err(err).Msg("dedupe cache lookup failed")
		}
		if hit {
			observability.ObserveSubscription("duplicate")
			return domain.Subscriber{}, domain.ErrDuplicate
		}
	}

	if err := s.repo.Insert(ctx, sub); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			observability.ObserveSubscription("duplicate")
		} else {
			observability.ObserveSubscription("error")
		}
		return domain.Subscriber{}, err
	}
	observability.ObserveSubscription("created")

	if s.cache != nil && s.dedupTTL > 0 {
		if err := s.cache.Set(ctx, subscriberKey(sub.Email), sub.ID.String(), int(s.dedupTTL.Seconds())); err != nil {
			log.Warn().Err(err).Msg("dedupe cache write failed")
		}
	}
	log.Info().Str("subscriber_id", sub.ID.String()).Msg("subscriber created")
	return sub, nil
}
