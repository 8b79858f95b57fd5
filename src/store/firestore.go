package store

import (
	"context"
	"errors"
	"fmt"
	"raffles/src/models"
	"raffles/src/types"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	rafflesCollection = "raffles"
	ticketsCollection = "tickets"
	ordersCollection  = "orders"
	usersCollection   = "users"
)

// FirestoreStore keeps raffles, tickets, orders and users as documents.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		return fn(ctx, &firestoreTx{s: s, tx: t, tickets: map[string]models.Ticket{}})
	})
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func decodeRaffle(snap *firestore.DocumentSnapshot) (*models.Raffle, error) {
	var r models.Raffle
	if err := snap.DataTo(&r); err != nil {
		return nil, err
	}
	r.ID = snap.Ref.ID
	return &r, nil
}

func decodeOrder(snap *firestore.DocumentSnapshot) (*models.Order, error) {
	var o models.Order
	if err := snap.DataTo(&o); err != nil {
		return nil, err
	}
	o.ID = snap.Ref.ID
	return &o, nil
}

func decodeTicket(snap *firestore.DocumentSnapshot) (models.Ticket, error) {
	var t models.Ticket
	if err := snap.DataTo(&t); err != nil {
		return t, err
	}
	t.ID = snap.Ref.ID
	return t, nil
}

// validDocID rejects ids Firestore cannot address as a single document.
func validDocID(id string) bool {
	return id != "" && !strings.Contains(id, "/")
}

func (s *FirestoreStore) GetRaffle(ctx context.Context, id string) (*models.Raffle, error) {
	if !validDocID(id) {
		return nil, types.ErrRaffleNotFound
	}
	snap, err := s.client.Collection(rafflesCollection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, types.ErrRaffleNotFound
		}
		return nil, err
	}
	return decodeRaffle(snap)
}

func (s *FirestoreStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if !validDocID(id) {
		return nil, types.ErrOrderNotFound
	}
	snap, err := s.client.Collection(ordersCollection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, types.ErrOrderNotFound
		}
		return nil, err
	}
	return decodeOrder(snap)
}

func (s *FirestoreStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	if !validDocID(id) {
		return nil, types.ErrUserNotFound
	}
	snap, err := s.client.Collection(usersCollection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, types.ErrUserNotFound
		}
		return nil, err
	}
	var u models.User
	if err := snap.DataTo(&u); err != nil {
		return nil, err
	}
	u.ID = snap.Ref.ID
	return &u, nil
}

func (s *FirestoreStore) ticketRefs(raffleID string, numbers []int) []*firestore.DocumentRef {
	refs := make([]*firestore.DocumentRef, len(numbers))
	for i, n := range numbers {
		refs[i] = s.client.Collection(ticketsCollection).Doc(models.TicketID(raffleID, n))
	}
	return refs
}

func (s *FirestoreStore) ticketQuery(f models.TicketFilter) firestore.Query {
	q := s.client.Collection(ticketsCollection).Where("raffle_id", "==", f.RaffleID)
	if f.Status != "" {
		q = q.Where("status", "==", string(f.Status))
	}
	if f.OrderID != "" {
		q = q.Where("order_id", "==", f.OrderID)
	}
	q = q.OrderBy("number", firestore.Asc)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return q
}

// collectTickets decodes snapshots, dropping missing documents and those failing the filter.
func collectTickets(snaps []*firestore.DocumentSnapshot, f models.TicketFilter) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		t, err := decodeTicket(snap)
		if err != nil {
			return nil, err
		}
		if !matchTicket(t, f) {
			continue
		}
		tickets = append(tickets, t)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].Number < tickets[j].Number })
	if f.Limit > 0 && len(tickets) > f.Limit {
		tickets = tickets[:f.Limit]
	}
	return tickets, nil
}

func (s *FirestoreStore) FindTickets(ctx context.Context, f models.TicketFilter) ([]models.Ticket, error) {
	var snaps []*firestore.DocumentSnapshot
	var err error
	if len(f.Numbers) > 0 {
		snaps, err = s.client.GetAll(ctx, s.ticketRefs(f.RaffleID, f.Numbers))
	} else {
		snaps, err = s.ticketQuery(f).Documents(ctx).GetAll()
	}
	if err != nil {
		return nil, err
	}
	return collectTickets(snaps, f)
}

func (s *FirestoreStore) CreateRaffle(ctx context.Context, r *models.Raffle) error {
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	_, err := s.client.Collection(rafflesCollection).Doc(r.ID).Create(ctx, r)
	return err
}

func (s *FirestoreStore) ListRaffles(ctx context.Context, st types.RaffleStatus) ([]models.Raffle, error) {
	q := s.client.Collection(rafflesCollection).Query
	if st != "" {
		q = q.Where("status", "==", string(st))
	}
	snaps, err := q.OrderBy("created_at", firestore.Desc).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	raffles := make([]models.Raffle, 0, len(snaps))
	for _, snap := range snaps {
		r, err := decodeRaffle(snap)
		if err != nil {
			return nil, err
		}
		raffles = append(raffles, *r)
	}
	return raffles, nil
}

func (s *FirestoreStore) DeleteRaffle(ctx context.Context, id string) error {
	ref := s.client.Collection(rafflesCollection).Doc(id)
	_, err := ref.Delete(ctx, firestore.Exists)
	if isNotFound(err) {
		return types.ErrRaffleNotFound
	}
	return err
}

// InsertTickets creates one chunk in a single transaction, so it commits entirely or not at all.
func (s *FirestoreStore) InsertTickets(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for i := range tickets {
			ref := s.client.Collection(ticketsCollection).Doc(tickets[i].ID)
			if err := tx.Create(ref, tickets[i]); err != nil {
				return err
			}
		}
		return nil
	}, firestore.MaxAttempts(1))
	if status.Code(err) == codes.AlreadyExists {
		return types.Errorf(types.ErrTicketsExist, "raffle %s", tickets[0].RaffleID)
	}
	return err
}

// deleteWhere removes every document matched by q.
func (s *FirestoreStore) deleteWhere(ctx context.Context, q firestore.Query) (int, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()
	refs := []*firestore.DocumentRef{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, err
		}
		refs = append(refs, snap.Ref)
	}
	return s.deleteRefs(ctx, refs)
}

// deleteRefs removes documents through a BulkWriter and counts the deletes that succeeded.
func (s *FirestoreStore) deleteRefs(ctx context.Context, refs []*firestore.DocumentRef) (int, error) {
	if len(refs) == 0 {
		return 0, nil
	}
	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	for _, ref := range refs {
		job, err := bw.Delete(ref)
		if err != nil {
			bw.End()
			return 0, err
		}
		jobs = append(jobs, job)
	}
	bw.End()
	deleted := 0
	var firstErr error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		deleted++
	}
	return deleted, firstErr
}

func (s *FirestoreStore) DeleteTickets(ctx context.Context, raffleID string) (int, error) {
	return s.deleteWhere(ctx, s.client.Collection(ticketsCollection).Where("raffle_id", "==", raffleID))
}

// DeleteTicketRange addresses tickets by their deterministic ids.
func (s *FirestoreStore) DeleteTicketRange(ctx context.Context, raffleID string, from, to int) (int, error) {
	refs := make([]*firestore.DocumentRef, 0, max(to-from+1, 0))
	for n := from; n <= to; n++ {
		refs = append(refs, s.client.Collection(ticketsCollection).Doc(models.TicketID(raffleID, n)))
	}
	return s.deleteRefs(ctx, refs)
}

func (s *FirestoreStore) DeleteOrders(ctx context.Context, raffleID string) (int, error) {
	return s.deleteWhere(ctx, s.client.Collection(ordersCollection).Where("raffle_id", "==", raffleID))
}

func (s *FirestoreStore) CountTickets(ctx context.Context, raffleID string) (map[types.TicketStatus]int, error) {
	counts := map[types.TicketStatus]int{}
	for _, st := range types.TicketStatuses {
		res, err := s.client.Collection(ticketsCollection).
			Where("raffle_id", "==", raffleID).
			Where("status", "==", string(st)).
			NewAggregationQuery().
			WithCount("all").
			Get(ctx)
		if err != nil {
			return nil, err
		}
		v, ok := res["all"].(*firestorepb.Value)
		if !ok {
			return nil, fmt.Errorf("unexpected count result %T", res["all"])
		}
		if n := int(v.GetIntegerValue()); n > 0 {
			counts[st] = n
		}
	}
	return counts, nil
}

func (s *FirestoreStore) ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error) {
	q := s.client.Collection(ordersCollection).Query
	if f.UserID != "" {
		q = q.Where("user_id", "==", f.UserID)
	}
	if f.RaffleID != "" {
		q = q.Where("raffle_id", "==", f.RaffleID)
	}
	if f.Status != "" {
		q = q.Where("status", "==", string(f.Status))
	}
	if f.ExpiresBefore != nil {
		q = q.Where("expires_at", "<", *f.ExpiresBefore).OrderBy("expires_at", firestore.Asc)
	} else {
		q = q.OrderBy("created_at", firestore.Asc)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	orders := make([]models.Order, 0, len(snaps))
	for _, snap := range snaps {
		o, err := decodeOrder(snap)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

func (s *FirestoreStore) UpsertUser(ctx context.Context, u *models.User) error {
	ref := s.client.Collection(usersCollection).Doc(u.ID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now().UTC()
		u.CreatedAt, u.UpdatedAt = now, now
		snap, err := tx.Get(ref)
		if err != nil && !isNotFound(err) {
			return err
		}
		if err == nil {
			if created, ok := snap.Data()["created_at"].(time.Time); ok {
				u.CreatedAt = created
			}
		}
		return tx.Set(ref, u)
	})
}

// firestoreTx caches the tickets it reads, since Firestore rejects reads after the first write.
type firestoreTx struct {
	s       *FirestoreStore
	tx      *firestore.Transaction
	tickets map[string]models.Ticket
	wrote   bool
}

var errReadAfterWrite = errors.New("firestore transaction: read after write")

func (t *firestoreTx) get(ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	if t.wrote {
		return nil, errReadAfterWrite
	}
	return t.tx.Get(ref)
}

func (t *firestoreTx) GetRaffle(ctx context.Context, id string) (*models.Raffle, error) {
	if !validDocID(id) {
		return nil, types.ErrRaffleNotFound
	}
	snap, err := t.get(t.s.client.Collection(rafflesCollection).Doc(id))
	if err != nil {
		if isNotFound(err) {
			return nil, types.ErrRaffleNotFound
		}
		return nil, err
	}
	return decodeRaffle(snap)
}

func (t *firestoreTx) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if !validDocID(id) {
		return nil, types.ErrOrderNotFound
	}
	snap, err := t.get(t.s.client.Collection(ordersCollection).Doc(id))
	if err != nil {
		if isNotFound(err) {
			return nil, types.ErrOrderNotFound
		}
		return nil, err
	}
	return decodeOrder(snap)
}

func (t *firestoreTx) GetUser(ctx context.Context, id string) (*models.User, error) {
	if !validDocID(id) {
		return nil, types.ErrUserNotFound
	}
	snap, err := t.get(t.s.client.Collection(usersCollection).Doc(id))
	if err != nil {
		if isNotFound(err) {
			return nil, types.ErrUserNotFound
		}
		return nil, err
	}
	var u models.User
	if err := snap.DataTo(&u); err != nil {
		return nil, err
	}
	u.ID = snap.Ref.ID
	return &u, nil
}

func (t *firestoreTx) FindTickets(ctx context.Context, f models.TicketFilter) ([]models.Ticket, error) {
	if t.wrote {
		return nil, errReadAfterWrite
	}
	var snaps []*firestore.DocumentSnapshot
	var err error
	if len(f.Numbers) > 0 {
		snaps, err = t.tx.GetAll(t.s.ticketRefs(f.RaffleID, f.Numbers))
	} else {
		snaps, err = t.tx.Documents(t.s.ticketQuery(f)).GetAll()
	}
	if err != nil {
		return nil, err
	}
	tickets, err := collectTickets(snaps, f)
	if err != nil {
		return nil, err
	}
	for _, ticket := range tickets {
		t.tickets[ticket.ID] = ticket
	}
	return tickets, nil
}

func (t *firestoreTx) CreateOrder(ctx context.Context, o *models.Order) error {
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	t.wrote = true
	return t.tx.Create(t.s.client.Collection(ordersCollection).Doc(o.ID), o)
}

func (t *firestoreTx) UpdateOrder(ctx context.Context, id string, u models.OrderUpdate) error {
	updates := []firestore.Update{{Path: "updated_at", Value: time.Now().UTC()}}
	if u.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: string(*u.Status)})
	}
	if u.PaidAt != nil {
		updates = append(updates, firestore.Update{Path: "paid_at", Value: *u.PaidAt})
	}
	if u.CancelledAt != nil {
		updates = append(updates, firestore.Update{Path: "cancelled_at", Value: *u.CancelledAt})
	}
	if u.PaymentProvider != nil {
		updates = append(updates, firestore.Update{Path: "payment_provider", Value: *u.PaymentProvider})
	}
	if u.PaymentID != nil {
		updates = append(updates, firestore.Update{Path: "payment_id", Value: *u.PaymentID})
	}
	if u.PaymentQRCode != nil {
		updates = append(updates, firestore.Update{Path: "payment_qr_code", Value: *u.PaymentQRCode})
	}
	if u.PaymentTicketURL != nil {
		updates = append(updates, firestore.Update{Path: "payment_ticket_url", Value: *u.PaymentTicketURL})
	}
	t.wrote = true
	return t.tx.Update(t.s.client.Collection(ordersCollection).Doc(id), updates)
}

// TransitionTickets checks every ticket against the copy read earlier in the transaction.
// Firestore fails the commit if any of those documents changed since they were read.
func (t *firestoreTx) TransitionTickets(ctx context.Context, raffleID string, numbers []int, from types.TicketStatus, u models.TicketUpdate) error {
	for _, n := range numbers {
		cached, ok := t.tickets[models.TicketID(raffleID, n)]
		if !ok {
			return fmt.Errorf("ticket %d of raffle %s was not read in this transaction", n, raffleID)
		}
		if cached.Status != from {
			return types.Errorf(types.ErrConflict, "ticket %d of raffle %s is not %s", n, raffleID, from)
		}
	}
	updates := []firestore.Update{{Path: "status", Value: string(u.Status)}}
	if u.Owner != nil {
		updates = append(updates,
			firestore.Update{Path: "user_id", Value: u.Owner.UserID},
			firestore.Update{Path: "order_id", Value: u.Owner.OrderID},
			firestore.Update{Path: "reserved_at", Value: u.Owner.ReservedAt},
		)
	}
	if u.Release {
		updates = append(updates,
			firestore.Update{Path: "user_id", Value: nil},
			firestore.Update{Path: "order_id", Value: nil},
			firestore.Update{Path: "reserved_at", Value: nil},
			firestore.Update{Path: "purchased_at", Value: nil},
		)
	}
	if u.PurchasedAt != nil {
		updates = append(updates, firestore.Update{Path: "purchased_at", Value: *u.PurchasedAt})
	}
	t.wrote = true
	for _, n := range numbers {
		id := models.TicketID(raffleID, n)
		if err := t.tx.Update(t.s.client.Collection(ticketsCollection).Doc(id), updates); err != nil {
			return err
		}
		ticket := t.tickets[id]
		u.Apply(&ticket)
		t.tickets[id] = ticket
	}
	return nil
}

func (t *firestoreTx) UpdateRaffle(ctx context.Context, id string, u models.RaffleUpdate) error {
	updates := []firestore.Update{{Path: "updated_at", Value: time.Now().UTC()}}
	if u.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: string(*u.Status)})
	}
	if u.TotalTickets != nil {
		updates = append(updates, firestore.Update{Path: "qtd_total", Value: *u.TotalTickets})
	}
	if u.WinningNumber != nil {
		updates = append(updates, firestore.Update{Path: "winning_number", Value: *u.WinningNumber})
	}
	if u.WinnerID != nil {
		updates = append(updates, firestore.Update{Path: "winner_id", Value: *u.WinnerID})
	}
	if u.WinnerName != nil {
		updates = append(updates, firestore.Update{Path: "winner_name", Value: *u.WinnerName})
	}
	if u.DrawnAt != nil {
		updates = append(updates, firestore.Update{Path: "drawn_at", Value: *u.DrawnAt})
	}
	t.wrote = true
	return t.tx.Update(t.s.client.Collection(rafflesCollection).Doc(id), updates)
}

func (t *firestoreTx) IncrementRaffle(ctx context.Context, id string, c models.RaffleCounters) error {
	t.wrote = true
	return t.tx.Update(t.s.client.Collection(rafflesCollection).Doc(id), []firestore.Update{
		{Path: "qtd_vendida", Value: firestore.Increment(c.Sold)},
		{Path: "participantes", Value: firestore.Increment(c.Participants)},
		{Path: "revenue", Value: firestore.Increment(c.Revenue)},
		{Path: "updated_at", Value: time.Now().UTC()},
	})
}
