package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dumxhh/play-book-app/internal/gateway"
	"github.com/dumxhh/play-book-app/internal/models"
	"github.com/dumxhh/play-book-app/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// memoryStore stands in for the reservation, time block and transaction
// tables, including the completed-slot unique index and the booking lock.
type memoryStore struct {
	mu           sync.Mutex
	bookingMu    sync.Mutex
	clock        Clock
	nextID       int
	nextBlockID  int64
	reservations map[string]*models.Reservation
	blocks       []models.TimeBlock
	transactions map[string]*models.Transaction
	writes       int
}

func newMemoryStore(clock Clock) *memoryStore {
	return &memoryStore{
		clock:        clock,
		reservations: map[string]*models.Reservation{},
		transactions: map[string]*models.Transaction{},
	}
}

func (m *memoryStore) WithBookingLock(
	_ context.Context,
	_ models.Resource,
	fn func(reservations bookingWriter, blocks blockWriter) error,
) error {
	m.bookingMu.Lock()
	defer m.bookingMu.Unlock()
	return fn(m, memoryBlocks{m})
}

// memoryBlocks is the time block side of memoryStore. Its methods shadow the
// reservation methods of the same name.
type memoryBlocks struct {
	*memoryStore
}

func (b memoryBlocks) Create(_ context.Context, input repository.CreateTimeBlockInput) (*models.TimeBlock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextBlockID++
	b.writes++
	block := models.TimeBlock{
		ID:        b.nextBlockID,
		Resource:  input.Resource,
		Date:      input.Date,
		StartTime: input.StartTime,
		EndTime:   input.EndTime,
		Reason:    input.Reason,
		CreatedBy: input.CreatedBy,
		CreatedAt: b.clock.Now(),
	}
	b.blocks = append(b.blocks, block)
	return &block, nil
}

func (b memoryBlocks) List(_ context.Context, fromDate string) ([]models.TimeBlock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	blocks := make([]models.TimeBlock, 0, len(b.blocks))
	for _, block := range b.blocks {
		if fromDate == "" || block.Date >= fromDate {
			blocks = append(blocks, block)
		}
	}
	return blocks, nil
}

func (b memoryBlocks) Delete(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, block := range b.blocks {
		if block.ID == id {
			b.blocks = append(b.blocks[:i], b.blocks[i+1:]...)
			b.writes++
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *memoryStore) blockCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocks)
}

func (m *memoryStore) Create(_ context.Context, input repository.CreateReservationInput) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.writes++
	now := m.clock.Now()
	reservation := &models.Reservation{
		ID:              fmt.Sprintf("res-%03d", m.nextID),
		Resource:        input.Resource,
		Date:            input.Date,
		StartTime:       input.StartTime,
		DurationMinutes: input.DurationMinutes,
		CustomerName:    input.CustomerName,
		CustomerPhone:   input.CustomerPhone,
		CustomerEmail:   input.CustomerEmail,
		Amount:          input.Amount,
		PaymentStatus:   models.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.reservations[reservation.ID] = reservation
	copied := *reservation
	return &copied, nil
}

func (m *memoryStore) put(reservation models.Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := reservation
	m.reservations[reservation.ID] = &copied
}

func (m *memoryStore) status(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reservation, ok := m.reservations[id]; ok {
		return reservation.PaymentStatus
	}
	return ""
}

func (m *memoryStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memoryStore) GetByID(_ context.Context, id string) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reservation, ok := m.reservations[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *reservation
	return &copied, nil
}

func (m *memoryStore) List(_ context.Context, filter repository.ReservationListFilter) ([]models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reservations := make([]models.Reservation, 0)
	for _, reservation := range m.reservations {
		if filter.Date != "" && reservation.Date != filter.Date {
			continue
		}
		if filter.Status != "" && reservation.PaymentStatus != filter.Status {
			continue
		}
		if filter.Resource != "" && reservation.Resource != filter.Resource {
			continue
		}
		reservations = append(reservations, *reservation)
	}
	sort.Slice(reservations, func(i, j int) bool { return reservations[i].ID < reservations[j].ID })
	return reservations, nil
}

func (m *memoryStore) ListActiveBetween(
	_ context.Context,
	resource models.Resource,
	fromDate string,
	toDate string,
) ([]models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reservations := make([]models.Reservation, 0)
	for _, reservation := range m.reservations {
		if reservation.Resource != resource || reservation.PaymentStatus == models.PaymentStatusFailed {
			continue
		}
		if reservation.Date < fromDate || reservation.Date > toDate {
			continue
		}
		reservations = append(reservations, *reservation)
	}
	return reservations, nil
}

func (m *memoryStore) ListPendingCreatedBefore(_ context.Context, cutoff time.Time) ([]models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reservations := make([]models.Reservation, 0)
	for _, reservation := range m.reservations {
		if reservation.PaymentStatus == models.PaymentStatusPending && reservation.CreatedAt.Before(cutoff) {
			reservations = append(reservations, *reservation)
		}
	}
	sort.Slice(reservations, func(i, j int) bool { return reservations[i].ID < reservations[j].ID })
	return reservations, nil
}

func (m *memoryStore) UpdateStatusIfCurrent(
	_ context.Context,
	id string,
	currentStatus string,
	nextStatus string,
	note *string,
) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reservation, ok := m.reservations[id]
	if !ok || reservation.PaymentStatus != currentStatus {
		return nil, pgx.ErrNoRows
	}
	if nextStatus == models.PaymentStatusCompleted {
		for _, other := range m.reservations {
			if other.ID != id &&
				other.PaymentStatus == models.PaymentStatusCompleted &&
				other.Resource == reservation.Resource &&
				other.Date == reservation.Date &&
				other.StartTime == reservation.StartTime {
				return nil, &pgconn.PgError{Code: "23505"}
			}
		}
	}

	m.writes++
	reservation.PaymentStatus = nextStatus
	if note != nil {
		reservation.InternalNotes = appendNote(reservation.InternalNotes, *note)
	}
	copied := *reservation
	return &copied, nil
}

func (m *memoryStore) AttachRefundIfCompleted(
	_ context.Context,
	id string,
	input repository.AttachRefundInput,
) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reservation, ok := m.reservations[id]
	if !ok ||
		reservation.PaymentStatus != models.PaymentStatusCompleted ||
		reservation.Refund != nil ||
		input.Amount > reservation.Amount {
		return nil, pgx.ErrNoRows
	}

	m.writes++
	reservation.Refund = &models.Refund{
		Amount:     input.Amount,
		Status:     models.RefundStatusProcessed,
		Reason:     input.Reason,
		RefundedAt: m.clock.Now(),
	}
	reservation.InternalNotes = appendNote(reservation.InternalNotes, input.Note)
	copied := *reservation
	return &copied, nil
}

func (m *memoryStore) ListBetween(
	_ context.Context,
	resource models.Resource,
	fromDate string,
	toDate string,
) ([]models.TimeBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	blocks := make([]models.TimeBlock, 0)
	for _, block := range m.blocks {
		if block.Resource == resource && block.Date >= fromDate && block.Date <= toDate {
			blocks = append(blocks, block)
		}
	}
	return blocks, nil
}

func (m *memoryStore) GetByReservationID(_ context.Context, reservationID string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	transaction, ok := m.transactions[reservationID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *transaction
	return &copied, nil
}

func (m *memoryStore) ListByReservationIDs(_ context.Context, reservationIDs []string) (map[string]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	transactions := make(map[string]models.Transaction, len(reservationIDs))
	for _, id := range reservationIDs {
		if transaction, ok := m.transactions[id]; ok {
			transactions[id] = *transaction
		}
	}
	return transactions, nil
}

func (m *memoryStore) UpsertIntent(_ context.Context, input repository.UpsertIntentInput) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	transaction, ok := m.transactions[input.ReservationID]
	if ok && transaction.IntentID != "" {
		return nil, pgx.ErrNoRows
	}
	if !ok {
		m.nextID++
		transaction = &models.Transaction{
			ID:            int64(m.nextID),
			ReservationID: input.ReservationID,
			Amount:        input.Amount,
			Currency:      input.Currency,
			Status:        gateway.StatusPending,
		}
		m.transactions[input.ReservationID] = transaction
	}

	m.writes++
	transaction.Gateway = input.Gateway
	transaction.IntentID = input.IntentID
	transaction.RedirectURL = input.RedirectURL
	copied := *transaction
	return &copied, nil
}

func (m *memoryStore) ApplyPaymentUpdate(_ context.Context, input repository.PaymentUpdateInput) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	transaction, ok := m.transactions[input.ReservationID]
	if !ok {
		m.nextID++
		transaction = &models.Transaction{
			ID:            int64(m.nextID),
			ReservationID: input.ReservationID,
			Gateway:       input.Gateway,
			Amount:        input.Amount,
			Currency:      input.Currency,
		}
		m.transactions[input.ReservationID] = transaction
	}

	samePayment := transaction.GatewayPaymentID != nil && *transaction.GatewayPaymentID == input.PaymentID
	if !samePayment && settledGatewayStatus(transaction.Status) {
		copied := *transaction
		return &copied, nil
	}

	m.writes++
	paymentID := input.PaymentID
	transaction.GatewayPaymentID = &paymentID
	switch {
	case !samePayment:
		transaction.Status = input.Status
		transaction.PaymentMethod = nil
	case finalGatewayStatus(transaction.Status) && !finalGatewayStatus(input.Status):
	case (transaction.Status == "refunded" || transaction.Status == "charged_back") && input.Status == "approved":
	default:
		transaction.Status = input.Status
	}
	if input.PaymentMethod != nil {
		method := *input.PaymentMethod
		transaction.PaymentMethod = &method
	}
	copied := *transaction
	return &copied, nil
}

func (m *memoryStore) transaction(reservationID string) *models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	transaction, ok := m.transactions[reservationID]
	if !ok {
		return nil
	}
	copied := *transaction
	return &copied
}

func finalGatewayStatus(status string) bool {
	switch status {
	case "approved", "rejected", "cancelled", "refunded", "charged_back":
		return true
	default:
		return false
	}
}

func settledGatewayStatus(status string) bool {
	return status == "approved" || status == "refunded" || status == "charged_back"
}

func appendNote(notes *string, note string) *string {
	if notes == nil || *notes == "" {
		return &note
	}
	joined := strings.Join([]string{*notes, note}, "\n")
	return &joined
}

type fakeGateway struct {
	mu          sync.Mutex
	payments    map[string]gateway.Payment
	lookupErrs  []error
	lookups     int
	createErr   error
	createCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payments: map[string]gateway.Payment{}}
}

func (g *fakeGateway) Name() string {
	return "fake"
}

func (g *fakeGateway) CreateIntent(_ context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.createCalls++
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &gateway.Intent{
		ID:          "pref-" + req.CorrelationKey,
		RedirectURL: "https://pay.example.com/checkout/" + req.CorrelationKey,
	}, nil
}

func (g *fakeGateway) GetPayment(ctx context.Context, paymentID string) (*gateway.Payment, error) {
	g.mu.Lock()
	g.lookups++
	var err error
	if len(g.lookupErrs) > 0 {
		err = g.lookupErrs[0]
		g.lookupErrs = g.lookupErrs[1:]
	}
	payment, ok := g.payments[paymentID]
	g.mu.Unlock()

	if err == context.DeadlineExceeded {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, gateway.ErrPaymentNotFound
	}
	return &payment, nil
}

func (g *fakeGateway) setPayment(payment gateway.Payment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[payment.ID] = payment
}

type countingNotifier struct {
	mu        sync.Mutex
	confirmed []string
}

func (n *countingNotifier) OnReservationConfirmed(_ context.Context, reservationID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, reservationID)
}

func (n *countingNotifier) calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.confirmed...)
}

func fixedClock(value time.Time) Clock {
	return ClockFunc(func() time.Time { return value })
}

func newTestReservationService(store *memoryStore, clock Clock) *ReservationService {
	return &ReservationService{
		resolver:        NewSlotResolver(clock, time.UTC, nil),
		locker:          store,
		reservationRepo: store,
		timeBlockRepo:   store,
		transactionRepo: store,
		clock:           clock,
		logger:          zerolog.Nop(),
	}
}
