package common

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand/v2"
	"raffles/src/clock"
	"raffles/src/store"
	"raffles/src/types"
	"sync"
	"time"
)

const (
	DefaultReservationTTL = 30 * time.Minute
	DefaultBatchLimit     = 500
	DefaultMaxTickets     = 100000
	DefaultClaimRetries   = 5
	sweepPageSize         = 200
	publishTimeout        = 30 * time.Second
)

// PaymentProvider issues PIX charges and answers payment lookups by id.
type PaymentProvider interface {
	Name() string
	CreatePixPayment(ctx context.Context, req types.PixPaymentRequest) (*types.PixPayment, error)
	GetPayment(ctx context.Context, id string) (*types.PaymentDetails, error)
}

// Publisher receives domain events after their transaction committed. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, e types.DomainEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, types.DomainEvent) error { return nil }

type Options struct {
	Provider        PaymentProvider
	Publisher       Publisher
	Clock           clock.Clock
	Rand            func(n int) int
	ReservationTTL  time.Duration
	BatchLimit      int
	MaxTickets      int
	ClaimRetries    int
	NotificationURL string
}

// Service owns the raffle, reservation, settlement and drawing state machine.
type Service struct {
	store           store.Store
	provider        PaymentProvider
	publisher       Publisher
	clock           clock.Clock
	rand            func(n int) int
	reservationTTL  time.Duration
	batchLimit      int
	maxTickets      int
	claimRetries    int
	notificationURL string

	background sync.WaitGroup
}

func NewService(s store.Store, opts Options) *Service {
	svc := &Service{
		store:           s,
		provider:        opts.Provider,
		publisher:       opts.Publisher,
		clock:           opts.Clock,
		rand:            opts.Rand,
		reservationTTL:  opts.ReservationTTL,
		batchLimit:      opts.BatchLimit,
		maxTickets:      opts.MaxTickets,
		claimRetries:    opts.ClaimRetries,
		notificationURL: opts.NotificationURL,
	}
	if svc.publisher == nil {
		svc.publisher = nopPublisher{}
	}
	if svc.clock == nil {
		svc.clock = clock.NewSystem()
	}
	if svc.rand == nil {
		svc.rand = rand.IntN
	}
	if svc.reservationTTL <= 0 {
		svc.reservationTTL = DefaultReservationTTL
	}
	if svc.batchLimit <= 2 {
		svc.batchLimit = DefaultBatchLimit
	}
	if svc.maxTickets <= 0 {
		svc.maxTickets = DefaultMaxTickets
	}
	if svc.claimRetries <= 0 {
		svc.claimRetries = DefaultClaimRetries
	}
	return svc
}

func (s *Service) Store() store.Store {
	return s.store
}

func (s *Service) ProviderName() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

// MaxQuantity is the largest reservation a single transaction can hold:
// the claimed tickets plus the order and raffle documents.
func (s *Service) MaxQuantity() int {
	return s.batchLimit - 2
}

// Wait blocks until background cleanups and event deliveries finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// runClaim runs fn in a transaction and retries it while a conditional ticket transition conflicts.
func (s *Service) runClaim(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.claimRetries; attempt++ {
		err = s.store.RunInTx(ctx, fn)
		if !errors.Is(err, types.ErrConflict) {
			return err
		}
		log.Printf("Claim conflict (attempt %d/%d): %s\n", attempt, s.claimRetries, err.Error())
	}
	return err
}

// publish delivers e off the request path. Delivery survives the caller's cancellation
// but is bounded by publishTimeout.
func (s *Service) publish(ctx context.Context, e types.DomainEvent) {
	e.OccurredAt = s.clock.Now()
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := s.publisher.Publish(ctx, e); err != nil {
			log.Printf("Error publishing %s event: %s\n", e.Type, err.Error())
		}
	}()
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
