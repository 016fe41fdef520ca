package payment

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/payment-hub/internal"
	"github.com/frahmantamala/payment-hub/internal/core/events"
)

// Draft is what creation hooks see before anything is persisted.
type Draft struct {
	Data  PaymentData
	Items []ItemInput
}

type (
	BeforeCreateFunc func(ctx context.Context, draft *Draft) error
	AfterCreateFunc  func(ctx context.Context, p *Payment, items []*Item) error
)

// Manager owns the payment lifecycle. Every state change runs in one
// transaction against RepositoryAPI and is guarded by the row version.
type Manager struct {
	repo      RepositoryAPI
	items     *ItemRegistry
	gateways  *GatewayRegistry
	publisher events.Publisher
	logger    *slog.Logger

	now                  func() time.Time
	newHash              HashGenerator
	defaultCancelTimeout time.Duration

	beforeCreate []BeforeCreateFunc
	afterCreate  []AfterCreateFunc
}

type ManagerOption func(*Manager)

func WithPublisher(p events.Publisher) ManagerOption {
	return func(m *Manager) { m.publisher = p }
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func WithHashGenerator(gen HashGenerator) ManagerOption {
	return func(m *Manager) { m.newHash = gen }
}

// WithDefaultCancelTimeout sets the deadline applied to new payments; zero disables it.
func WithDefaultCancelTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.defaultCancelTimeout = d }
}

func NewManager(repo RepositoryAPI, items *ItemRegistry, gateways *GatewayRegistry, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		repo:     repo,
		items:    items,
		gateways: gateways,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newHash:  NewHash,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) OnBeforeCreate(fn BeforeCreateFunc) {
	m.beforeCreate = append(m.beforeCreate, fn)
}

func (m *Manager) OnAfterCreate(fn AfterCreateFunc) {
	m.afterCreate = append(m.afterCreate, fn)
}

func (m *Manager) FindItemKindByAlias(alias string) (ItemKind, bool) {
	return m.items.Find(alias)
}

func (m *Manager) FindGatewayByAlias(alias string) (GatewayKind, bool) {
	return m.gateways.Find(alias)
}

func (m *Manager) ListItemKinds() []KindInfo {
	return DescribeItemKinds(m.items)
}

func (m *Manager) ListGatewayKinds() []KindInfo {
	return DescribeGatewayKinds(m.gateways)
}

// GetOpenedCount counts payments still in NEW or WAITING.
func (m *Manager) GetOpenedCount(ctx context.Context) (int64, error) {
	return m.repo.CountPaymentsByStatus(ctx, ActiveStatuses...)
}

func (m *Manager) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	return m.repo.GetPayment(ctx, id)
}

func (m *Manager) FindPaymentByHash(ctx context.Context, hash string) (*Payment, error) {
	return m.repo.GetPaymentByHash(ctx, hash)
}

// PaymentDetails is a payment with its items and audit trail.
type PaymentDetails struct {
	*Payment
	Items []*Item `json:"items"`
	Logs  []*Log  `json:"logs"`
}

func (m *Manager) GetPaymentDetails(ctx context.Context, id int64) (*PaymentDetails, error) {
	p, err := m.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := m.repo.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	logs, err := m.repo.ListLogs(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PaymentDetails{Payment: p, Items: items, Logs: logs}, nil
}

type resolvedItem struct {
	input ItemInput
	kind  ItemKind
}

// resolveItems validates inputs and binds them to registered kinds. Unknown
// kinds abort with failFast and are dropped otherwise.
func (m *Manager) resolveItems(inputs []ItemInput, failFast bool) ([]resolvedItem, error) {
	out := make([]resolvedItem, 0, len(inputs))
	for _, in := range inputs {
		in.Normalize()
		if err := in.Validate(); err != nil {
			return nil, err
		}
		kind, ok := m.items.Find(in.Kind)
		if !ok {
			if failFast {
				return nil, ErrUnknownItemKind.WithDetails(map[string]string{"kind": in.Kind})
			}
			m.logger.Warn("skipping item with unknown kind", "kind", in.Kind)
			continue
		}
		out = append(out, resolvedItem{input: in, kind: kind})
	}
	return out, nil
}

func newItem(paymentID int64, r resolvedItem) *Item {
	it := &Item{
		PaymentID:   paymentID,
		Kind:        r.input.Kind,
		Code:        r.kind.Code(),
		Quantity:    r.input.Quantity,
		UnitPrice:   r.input.UnitPrice,
		Description: r.input.Description,
		Options:     filterOptions(r.input.Options, r.kind.ExtraFillableFields()),
	}
	if it.Description == "" {
		it.Description = r.kind.DefaultMessage()
	}
	it.TotalPrice = it.ComputeTotal()
	return it
}

// CreatePaymentWithItems persists a NEW payment and its items; the payment
// amount is the sum of the accepted item totals.
func (m *Manager) CreatePaymentWithItems(ctx context.Context, data PaymentData, items []ItemInput, failFast bool) (*Payment, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	draft := &Draft{Data: data, Items: append([]ItemInput(nil), items...)}
	for _, hook := range m.beforeCreate {
		if err := hook(ctx, draft); err != nil {
			return nil, err
		}
	}

	accepted, err := m.resolveItems(draft.Items, failFast)
	if err != nil {
		return nil, err
	}

	return m.createPayment(ctx, draft.Data, accepted)
}

func (m *Manager) createPayment(ctx context.Context, data PaymentData, accepted []resolvedItem) (*Payment, error) {
	var (
		created      *Payment
		createdItems []*Item
	)
	err := m.repo.WithinTx(ctx, func(repo RepositoryAPI) error {
		p, err := m.insertPayment(ctx, repo, data)
		if err != nil {
			return err
		}

		createdItems = make([]*Item, 0, len(accepted))
		for _, r := range accepted {
			it := newItem(p.ID, r)
			if err := repo.CreateItem(ctx, it); err != nil {
				return err
			}
			p.Amount = p.Amount.Add(it.TotalPrice)
			createdItems = append(createdItems, it)
		}

		if len(createdItems) > 0 {
			if err := repo.UpdatePayment(ctx, p); err != nil {
				return err
			}
		}
		created = p
		return nil
	})
	if err != nil {
		m.logger.Error("failed to create payment", "error", err)
		return nil, err
	}

	for _, hook := range m.afterCreate {
		if err := callHook(func() error { return hook(ctx, created, createdItems) }); err != nil {
			m.logger.Error("after-create hook failed", "error", err, "payment_id", created.ID)
		}
	}

	m.logger.Info("payment created", "payment_id", created.ID, "hash", created.Hash, "amount", created.Amount.String(), "items", len(createdItems))
	m.publish(ctx, events.EventTypePaymentCreated, created, "", "")
	return created, nil
}

func (m *Manager) insertPayment(ctx context.Context, repo RepositoryAPI, data PaymentData) (*Payment, error) {
	p := &Payment{
		Status:      StatusNew,
		Amount:      decimal.Zero,
		UserID:      data.UserID,
		Description: data.Description,
		Options:     data.Options,
		Version:     1,
	}
	if p.UserID == nil {
		if uid, ok := errors.UserIDFromContext(ctx); ok {
			p.UserID = &uid
		}
	}
	if m.defaultCancelTimeout > 0 {
		deadline := m.now().Add(m.defaultCancelTimeout)
		p.CancelDeadline = &deadline
	}

	for attempt := 0; attempt < maxHashAttempts; attempt++ {
		hash, err := m.newHash()
		if err != nil {
			return nil, errors.NewInternalError("failed to generate payment hash", err)
		}
		p.Hash = hash
		err = repo.CreatePayment(ctx, p)
		if err == nil {
			return p, nil
		}
		if !stderrors.Is(err, ErrDuplicateHash) {
			return nil, err
		}
		m.logger.Warn("payment hash collision, regenerating", "attempt", attempt+1)
	}
	return nil, errors.NewInternalError("could not allocate a unique payment hash", ErrDuplicateHash)
}

// CreatePaymentWithItemsAndCode creates a payment for the payment system with
// the given code and assigns it in the same call.
func (m *Manager) CreatePaymentWithItemsAndCode(ctx context.Context, code string, data PaymentData, items []ItemInput) (*Payment, error) {
	sys, err := m.repo.GetSystemByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !sys.HasEnableSystem() {
		return nil, ErrGatewayDisabled
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	draft := &Draft{Data: data, Items: append([]ItemInput(nil), items...)}
	for _, hook := range m.beforeCreate {
		if err := hook(ctx, draft); err != nil {
			return nil, err
		}
	}

	accepted, err := m.resolveItems(draft.Items, true)
	if err != nil {
		return nil, err
	}
	inputs := make([]ItemInput, len(accepted))
	for i, r := range accepted {
		inputs[i] = r.input
	}
	if !sys.CheckMinPayItems(inputs) {
		return nil, ErrBelowMinimumPay.WithDetails(map[string]string{"min_pay": sys.MinPay.String()})
	}

	created, err := m.createPayment(ctx, draft.Data, accepted)
	if err != nil {
		return nil, err
	}
	return m.assignSystem(ctx, created.ID, sys)
}

// SetPaymentMethod attaches the payment system with systemID to a NEW payment.
func (m *Manager) SetPaymentMethod(ctx context.Context, paymentID, systemID int64) (*Payment, error) {
	sys, err := m.repo.GetSystem(ctx, systemID)
	if err != nil {
		return nil, err
	}
	return m.assignSystem(ctx, paymentID, sys)
}

func (m *Manager) SetPaymentMethodByCode(ctx context.Context, paymentID int64, code string) (*Payment, error) {
	sys, err := m.repo.GetSystemByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return m.assignSystem(ctx, paymentID, sys)
}

func (m *Manager) assignSystem(ctx context.Context, paymentID int64, sys *PaymentSystem) (*Payment, error) {
	if !sys.HasEnableSystem() {
		return nil, ErrGatewayDisabled
	}
	gw, ok := m.gateways.Find(sys.GatewayType)
	if !ok {
		return nil, ErrUnknownGatewayKind.WithDetails(map[string]string{"gateway_type": sys.GatewayType})
	}

	var (
		assigned *Payment
		started  bool
	)
	err := m.repo.WithinTx(ctx, func(repo RepositoryAPI) error {
		p, err := repo.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.HasGateway() {
			return ErrGatewayAlreadyAssigned
		}
		if !p.IsOpen() {
			return ErrNotActive
		}
		started = true

		systemID := sys.ID
		p.PaymentSystemID = &systemID
		p.CancelDeadline = nil

		if err := callHook(func() error { return gw.OnAssignedToPayment(ctx, sys, p) }); err != nil {
			return err
		}
		if err := callHook(func() error { return gw.OnPaymentCreatedOrReassigned(ctx, sys, p) }); err != nil {
			return err
		}

		p.Options = ApplyFieldDefaults(gw.PaymentFields(), p.Options)
		if variant := gw.PaymentVariant(); variant != "" {
			p.Variant = variant
		}
		if sys.HasUseTimeout() {
			deadline := m.now().Add(sys.GetTimeout())
			p.CancelDeadline = &deadline
		}
		p.Status = StatusWaiting

		if err := repo.UpdatePayment(ctx, p); err != nil {
			return err
		}
		assigned = p
		return nil
	})
	if err != nil {
		return nil, m.failTransition(ctx, paymentID, started, "Failed to assign payment system "+sys.Code, err)
	}

	if err := callHook(func() error { return gw.OnPaymentSystemChanged(ctx, sys, assigned) }); err != nil {
		m.errorPayment(ctx, paymentID, "Payment system "+sys.Code+" rejected the payment", err)
		return nil, ErrOperationFailed
	}

	m.logger.Info("payment system assigned", "payment_id", assigned.ID, "system", sys.Code, "gateway_type", sys.GatewayType)
	m.publish(ctx, events.EventTypePaymentGatewayAssigned, assigned, sys.Code, "")
	return assigned, nil
}

// failTransition reports an error raised inside a transition. Once the
// preconditions held, anything but a lost race moves the payment to ERROR and
// the caller only sees ErrOperationFailed.
func (m *Manager) failTransition(ctx context.Context, paymentID int64, started bool, message string, err error) error {
	if !started || stderrors.Is(err, ErrStaleVersion) {
		return m.resolveWriteError(ctx, paymentID, err)
	}
	m.errorPayment(ctx, paymentID, message, err)
	return ErrOperationFailed
}

// resolveWriteError turns a lost optimistic race into a domain error.
func (m *Manager) resolveWriteError(ctx context.Context, paymentID int64, err error) error {
	if !stderrors.Is(err, ErrStaleVersion) {
		if _, ok := errors.IsAppError(err); ok {
			return err
		}
		var rejected *ItemRejectedError
		if stderrors.As(err, &rejected) {
			return err
		}
		m.logger.Error("payment storage failure", "error", err, "payment_id", paymentID)
		return errors.NewInternalError("payment storage failure", err)
	}

	current, getErr := m.repo.GetPayment(ctx, paymentID)
	if getErr == nil && !current.IsActive() {
		return ErrNotActive
	}
	return ErrConcurrentUpdate
}

func (m *Manager) publish(ctx context.Context, eventType string, p *Payment, systemCode, message string) {
	if m.publisher == nil {
		return
	}
	ev := events.NewPaymentEvent(eventType, p.ID, p.Hash, p.Status.String(), p.Amount.StringFixed(2))
	if systemCode != "" {
		ev.WithSystem(systemCode)
	}
	if message != "" {
		ev.WithMessage(message)
	}
	if err := m.publisher.Publish(ctx, ev); err != nil {
		m.logger.Warn("failed to publish payment event", "error", err, "event_type", eventType, "payment_id", p.ID)
	}
}

func (m *Manager) newLog(ctx context.Context, paymentID int64, code, message string, snapshot map[string]any) *Log {
	l := &Log{
		PaymentID:       paymentID,
		Code:            code,
		Message:         message,
		RequestSnapshot: snapshot,
		IPAddress:       errors.ClientIPFromContext(ctx),
	}
	if uid, ok := errors.UserIDFromContext(ctx); ok {
		l.UserID = &uid
	}
	return l
}
