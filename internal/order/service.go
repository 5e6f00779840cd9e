package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"
	"ms-ledger/internal/monitoring"
	"ms-ledger/internal/order/db"
	"ms-ledger/internal/order/discount"
	"ms-ledger/internal/utils"

	"github.com/google/uuid"
)

// SessionStore remembers anonymous order codes, serializes order
// resolution per (event, session) and holds the per-order lock that
// checkout and cart edits share.
type SessionStore interface {
	LockSession(ctx context.Context, eventID, session, token string) error
	UnlockSession(ctx context.Context, eventID, session, token string) error
	GetOrderCode(ctx context.Context, session, eventID string) (string, error)
	SetOrderCode(ctx context.Context, session, eventID, code string) error

	// LockOrder fails fast with ErrConflict when the order is held;
	// WaitOrderLock waits a bounded time for it.
	LockOrder(ctx context.Context, orderID, token string) error
	WaitOrderLock(ctx context.Context, orderID, token string) error
	UnlockOrder(ctx context.Context, orderID, token string) error
}

type KafkaPublisher interface {
	PublishLedgerEvent(ctx context.Context, evt models.LedgerEvent) error
}

type Options struct {
	CodeRetries        int
	DefaultCartTimeout time.Duration
	Now                func() time.Time
}

type OrderService struct {
	DB        db.Store
	Sessions  SessionStore
	Kafka     KafkaPublisher
	Discounts *discount.DiscountService
	Logger    *logger.Logger

	codeRetries        int
	defaultCartTimeout time.Duration
	now                func() time.Time
}

func NewOrderService(store db.Store, sessions SessionStore, kafka KafkaPublisher, log *logger.Logger, opts Options) *OrderService {
	if opts.CodeRetries <= 0 {
		opts.CodeRetries = 10
	}
	if opts.DefaultCartTimeout <= 0 {
		opts.DefaultCartTimeout = 15 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &OrderService{
		DB:                 store,
		Sessions:           sessions,
		Kafka:              kafka,
		Discounts:          discount.NewDiscountService(log),
		Logger:             log,
		codeRetries:        opts.CodeRetries,
		defaultCartTimeout: opts.DefaultCartTimeout,
		now:                opts.Now,
	}
}

// WithStore returns a copy of the service bound to store, typically a
// transaction handed out by RunInTx.
func (s *OrderService) WithStore(store db.Store) *OrderService {
	cp := *s
	cp.DB = store
	return &cp
}

// Now is the service clock.
func (s *OrderService) Now() time.Time {
	return s.now()
}

// ---------------- ORDERS ----------------

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.DB.GetOrderByID(ctx, id)
}

// ResolveOrder finds the caller's order for an event. An authenticated
// person's own order wins; otherwise the anonymous order remembered by the
// session is used, and claimed for the person if nothing on it was ever
// paid. With create set, a new order is made when neither exists.
func (s *OrderService) ResolveOrder(ctx context.Context, eventID string, who models.Identity, create bool) (*models.Order, error) {
	if _, err := s.DB.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	if who.Authenticated() {
		order, err := s.DB.GetOrderByPerson(ctx, eventID, who.PersonID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("lookup order for person: %w", err)
		}
	}

	if who.SessionToken == "" {
		if !create {
			return nil, models.ErrOrderNotFound
		}
		return s.createOrder(ctx, eventID, who)
	}

	if !create {
		return s.orderFromSession(ctx, eventID, who)
	}

	token := uuid.NewString()
	if err := s.Sessions.LockSession(ctx, eventID, who.SessionToken, token); err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	defer func() {
		if err := s.Sessions.UnlockSession(context.Background(), eventID, who.SessionToken, token); err != nil {
			s.Logger.Warn("ORDER", fmt.Sprintf("Failed to release session lock: %v", err))
		}
	}()

	order, err := s.orderFromSession(ctx, eventID, who)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	return s.createOrder(ctx, eventID, who)
}

// Owns reports whether who may act on o as its attendee: the order belongs
// to the person, or the caller's session resolves to it.
func (s *OrderService) Owns(ctx context.Context, o *models.Order, who models.Identity) (bool, error) {
	if who.PersonID != "" && who.PersonID == o.PersonID {
		return true, nil
	}
	if who.SessionToken == "" && who.PersonID == "" {
		return false, nil
	}
	resolved, err := s.ResolveOrder(ctx, o.EventID, who, false)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return resolved.ID == o.ID, nil
}

func (s *OrderService) orderFromSession(ctx context.Context, eventID string, who models.Identity) (*models.Order, error) {
	code, err := s.Sessions.GetOrderCode(ctx, who.SessionToken, eventID)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, models.ErrOrderNotFound
	}

	order, err := s.DB.GetAnonymousOrderByCode(ctx, eventID, code)
	if err != nil {
		return nil, err
	}
	if !who.Authenticated() {
		return order, nil
	}

	purchased, err := s.DB.CountBoughtItems(ctx, order.ID, models.PurchasedStatuses...)
	if err != nil {
		return nil, err
	}
	if purchased > 0 {
		// paid-for history stays with the anonymous order
		return order, nil
	}

	if err := s.DB.SetOrderPerson(ctx, order.ID, who.PersonID); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return s.DB.GetOrderByPerson(ctx, eventID, who.PersonID)
		}
		return nil, fmt.Errorf("claim order: %w", err)
	}
	order.PersonID = who.PersonID
	s.Logger.LogOrder("CLAIM", order.ID, fmt.Sprintf("Anonymous order claimed by person %s", who.PersonID))
	return order, nil
}

func (s *OrderService) createOrder(ctx context.Context, eventID string, who models.Identity) (*models.Order, error) {
	for attempt := 1; attempt <= s.codeRetries; attempt++ {
		code, err := utils.GenerateOrderCode()
		if err != nil {
			return nil, fmt.Errorf("generate order code: %w", err)
		}

		order := &models.Order{
			ID:        uuid.NewString(),
			EventID:   eventID,
			PersonID:  who.PersonID,
			Code:      code,
			CreatedAt: s.now(),
		}

		err = s.DB.CreateOrder(ctx, order)
		if err == nil {
			if who.SessionToken != "" {
				if err := s.Sessions.SetOrderCode(ctx, who.SessionToken, eventID, code); err != nil {
					return nil, err
				}
			}
			monitoring.RecordOrderCreated(who.Authenticated())
			s.Logger.LogOrder("CREATE", order.ID, fmt.Sprintf("Order %s created for event %s", code, eventID))
			return order, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, err
		}

		if who.Authenticated() {
			// a concurrent request may have created this person's order
			if existing, lookupErr := s.DB.GetOrderByPerson(ctx, eventID, who.PersonID); lookupErr == nil {
				return existing, nil
			}
		}
		monitoring.RecordOrderCodeCollision()
		s.Logger.Warn("ORDER", fmt.Sprintf("Order code collision on attempt %d for event %s", attempt, eventID))
	}
	return nil, fmt.Errorf("could not allocate a unique order code after %d attempts: %w", s.codeRetries, models.ErrConflict)
}

func (s *OrderService) publish(ctx context.Context, evt models.LedgerEvent) {
	if s.Kafka == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = s.now()
	}
	if err := s.Kafka.PublishLedgerEvent(ctx, evt); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s event: %v", evt.Type, err))
	}
}
