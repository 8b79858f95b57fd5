package store

import (
	"context"
	"raffles/src/models"
	"raffles/src/types"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps everything in process. Transactions are serialized and a failed one
// is undone from the entries it wrote, so its cost follows what it touched.
type MemoryStore struct {
	mu      sync.Mutex
	raffles map[string]models.Raffle
	tickets map[string]map[int]models.Ticket
	orders  map[string]models.Order
	users   map[string]models.User

	// failInsertAfter makes InsertTickets fail once this many chunks were written; negative disables it.
	failInsertAfter int
	insertCalls     int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		raffles:         map[string]models.Raffle{},
		tickets:         map[string]map[int]models.Ticket{},
		orders:          map[string]models.Order{},
		users:           map[string]models.User{},
		failInsertAfter: -1,
	}
}

// FailInsertAfter arms a failure on the InsertTickets call following n successful ones.
func (m *MemoryStore) FailInsertAfter(n int) {
	m.mu.Lock()
	m.failInsertAfter = n
	m.insertCalls = 0
	m.mu.Unlock()
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{
		m:       m,
		raffles: map[string]*models.Raffle{},
		orders:  map[string]*models.Order{},
		tickets: map[string]map[int]models.Ticket{},
	}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// remember saves the entry under key before its first write; nil marks an entry that did not exist.
func remember[K comparable, V any](saved map[K]*V, live map[K]V, key K) {
	if _, seen := saved[key]; seen {
		return
	}
	if v, ok := live[key]; ok {
		saved[key] = &v
		return
	}
	saved[key] = nil
}

func revert[K comparable, V any](saved map[K]*V, live map[K]V) {
	for key, v := range saved {
		if v == nil {
			delete(live, key)
			continue
		}
		live[key] = *v
	}
}

func (m *MemoryStore) GetRaffle(ctx context.Context, id string) (*models.Raffle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getRaffle(id)
}

func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrder(id)
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getUser(id)
}

func (m *MemoryStore) FindTickets(ctx context.Context, f models.TicketFilter) ([]models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findTickets(f), nil
}

func (m *MemoryStore) CreateRaffle(ctx context.Context, r *models.Raffle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	m.raffles[r.ID] = *r
	return nil
}

func (m *MemoryStore) ListRaffles(ctx context.Context, status types.RaffleStatus) ([]models.Raffle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raffles := make([]models.Raffle, 0, len(m.raffles))
	for _, r := range m.raffles {
		if status != "" && r.Status != status {
			continue
		}
		raffles = append(raffles, r)
	}
	sort.Slice(raffles, func(i, j int) bool {
		return raffles[i].CreatedAt.After(raffles[j].CreatedAt)
	})
	return raffles, nil
}

func (m *MemoryStore) DeleteRaffle(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.raffles[id]; !ok {
		return types.ErrRaffleNotFound
	}
	delete(m.raffles, id)
	return nil
}

func (m *MemoryStore) InsertTickets(ctx context.Context, tickets []models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsertAfter >= 0 && m.insertCalls >= m.failInsertAfter {
		m.failInsertAfter = -1
		return types.Errorf(types.ErrInternal, "injected insert failure")
	}
	m.insertCalls++
	for _, t := range tickets {
		if _, exists := m.tickets[t.RaffleID][t.Number]; exists {
			return types.Errorf(types.ErrTicketsExist, "ticket %d", t.Number)
		}
	}
	for _, t := range tickets {
		if m.tickets[t.RaffleID] == nil {
			m.tickets[t.RaffleID] = map[int]models.Ticket{}
		}
		m.tickets[t.RaffleID][t.Number] = t
	}
	return nil
}

func (m *MemoryStore) DeleteTickets(ctx context.Context, raffleID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.tickets[raffleID])
	delete(m.tickets, raffleID)
	return n, nil
}

func (m *MemoryStore) DeleteTicketRange(ctx context.Context, raffleID string, from, to int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for number := range m.tickets[raffleID] {
		if number >= from && number <= to {
			delete(m.tickets[raffleID], number)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountTickets(ctx context.Context, raffleID string) (map[types.TicketStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[types.TicketStatus]int{}
	for _, t := range m.tickets[raffleID] {
		counts[t.Status]++
	}
	return counts, nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := []models.Order{}
	for _, o := range m.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.RaffleID != "" && o.RaffleID != f.RaffleID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.ExpiresBefore != nil && !o.ExpiresAt.Before(*f.ExpiresBefore) {
			continue
		}
		o.Numbers = slices.Clone(o.Numbers)
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	if f.Limit > 0 && len(orders) > f.Limit {
		orders = orders[:f.Limit]
	}
	return orders, nil
}

func (m *MemoryStore) DeleteOrders(ctx context.Context, raffleID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, o := range m.orders {
		if o.RaffleID == raffleID {
			delete(m.orders, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) UpsertUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := m.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
	} else {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	m.users[u.ID] = *u
	return nil
}

func (m *MemoryStore) getRaffle(id string) (*models.Raffle, error) {
	r, ok := m.raffles[id]
	if !ok {
		return nil, types.ErrRaffleNotFound
	}
	return &r, nil
}

func (m *MemoryStore) getOrder(id string) (*models.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, types.ErrOrderNotFound
	}
	o.Numbers = slices.Clone(o.Numbers)
	return &o, nil
}

func (m *MemoryStore) getUser(id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, types.ErrUserNotFound
	}
	return &u, nil
}

func (m *MemoryStore) findTickets(f models.TicketFilter) []models.Ticket {
	tickets := []models.Ticket{}
	byNumber := m.tickets[f.RaffleID]
	if len(f.Numbers) > 0 {
		for _, n := range f.Numbers {
			if t, ok := byNumber[n]; ok && matchTicket(t, f) {
				tickets = append(tickets, t)
			}
		}
	} else {
		for _, t := range byNumber {
			if matchTicket(t, f) {
				tickets = append(tickets, t)
			}
		}
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].Number < tickets[j].Number })
	if f.Limit > 0 && len(tickets) > f.Limit {
		tickets = tickets[:f.Limit]
	}
	return tickets
}

func matchTicket(t models.Ticket, f models.TicketFilter) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.OrderID != "" && (t.OrderID == nil || *t.OrderID != f.OrderID) {
		return false
	}
	return true
}

type memoryTx struct {
	m       *MemoryStore
	raffles map[string]*models.Raffle
	orders  map[string]*models.Order
	tickets map[string]map[int]models.Ticket
}

func (tx *memoryTx) rollback() {
	revert(tx.raffles, tx.m.raffles)
	revert(tx.orders, tx.m.orders)
	for raffleID, byNumber := range tx.tickets {
		for n, t := range byNumber {
			tx.m.tickets[raffleID][n] = t
		}
	}
}

func (tx *memoryTx) GetRaffle(ctx context.Context, id string) (*models.Raffle, error) {
	return tx.m.getRaffle(id)
}

func (tx *memoryTx) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return tx.m.getOrder(id)
}

func (tx *memoryTx) GetUser(ctx context.Context, id string) (*models.User, error) {
	return tx.m.getUser(id)
}

func (tx *memoryTx) FindTickets(ctx context.Context, f models.TicketFilter) ([]models.Ticket, error) {
	return tx.m.findTickets(f), nil
}

func (tx *memoryTx) CreateOrder(ctx context.Context, o *models.Order) error {
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	stored := *o
	stored.Numbers = slices.Clone(o.Numbers)
	remember(tx.orders, tx.m.orders, o.ID)
	tx.m.orders[o.ID] = stored
	return nil
}

func (tx *memoryTx) UpdateOrder(ctx context.Context, id string, u models.OrderUpdate) error {
	o, ok := tx.m.orders[id]
	if !ok {
		return types.ErrOrderNotFound
	}
	remember(tx.orders, tx.m.orders, id)
	u.Apply(&o)
	o.UpdatedAt = time.Now().UTC()
	tx.m.orders[id] = o
	return nil
}

func (tx *memoryTx) TransitionTickets(ctx context.Context, raffleID string, numbers []int, from types.TicketStatus, u models.TicketUpdate) error {
	byNumber := tx.m.tickets[raffleID]
	for _, n := range numbers {
		t, ok := byNumber[n]
		if !ok || t.Status != from {
			return types.Errorf(types.ErrConflict, "ticket %d of raffle %s is not %s", n, raffleID, from)
		}
	}
	saved := tx.tickets[raffleID]
	if saved == nil {
		saved = map[int]models.Ticket{}
		tx.tickets[raffleID] = saved
	}
	for _, n := range numbers {
		t := byNumber[n]
		if _, seen := saved[n]; !seen {
			saved[n] = t
		}
		u.Apply(&t)
		byNumber[n] = t
	}
	return nil
}

func (tx *memoryTx) UpdateRaffle(ctx context.Context, id string, u models.RaffleUpdate) error {
	r, ok := tx.m.raffles[id]
	if !ok {
		return types.ErrRaffleNotFound
	}
	remember(tx.raffles, tx.m.raffles, id)
	applyRaffleUpdate(&r, u)
	r.UpdatedAt = time.Now().UTC()
	tx.m.raffles[id] = r
	return nil
}

func (tx *memoryTx) IncrementRaffle(ctx context.Context, id string, c models.RaffleCounters) error {
	r, ok := tx.m.raffles[id]
	if !ok {
		return types.ErrRaffleNotFound
	}
	remember(tx.raffles, tx.m.raffles, id)
	r.QuantitySold += c.Sold
	r.Participants += c.Participants
	r.Revenue += c.Revenue
	r.UpdatedAt = time.Now().UTC()
	tx.m.raffles[id] = r
	return nil
}

func applyRaffleUpdate(r *models.Raffle, u models.RaffleUpdate) {
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.TotalTickets != nil {
		r.TotalTickets = *u.TotalTickets
	}
	if u.WinningNumber != nil {
		r.WinningNumber = u.WinningNumber
	}
	if u.WinnerID != nil {
		r.WinnerID = u.WinnerID
	}
	if u.WinnerName != nil {
		r.WinnerName = u.WinnerName
	}
	if u.DrawnAt != nil {
		r.DrawnAt = u.DrawnAt
	}
}
