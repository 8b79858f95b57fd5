package store

import (
	"context"
	"errors"
	"raffles/src/models"
	"raffles/src/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the relational backend (Postgres in production, sqlite locally and in tests).
type GormStore struct {
	db *gorm.DB
	// lock enables row locks; only Postgres honours FOR UPDATE SKIP LOCKED.
	lock bool
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, lock: db.Dialector.Name() == "postgres"}
}

func (g *GormStore) Migrate() error {
	return g.db.AutoMigrate(
		&models.User{},
		&models.Raffle{},
		&models.Ticket{},
		&models.Order{},
	)
}

func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (g *GormStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &gormTx{db: tx, lock: g.lock})
	})
}

func (g *GormStore) reader(ctx context.Context) *gormTx {
	return &gormTx{db: g.db.WithContext(ctx)}
}

func (g *GormStore) GetRaffle(ctx context.Context, id string) (*models.Raffle, error) {
	return g.reader(ctx).GetRaffle(ctx, id)
}

func (g *GormStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return g.reader(ctx).GetOrder(ctx, id)
}

func (g *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return g.reader(ctx).GetUser(ctx, id)
}

func (g *GormStore) FindTickets(ctx context.Context, f models.TicketFilter) ([]models.Ticket, error) {
	return g.reader(ctx).FindTickets(ctx, f)
}

func (g *GormStore) CreateRaffle(ctx context.Context, r *models.Raffle) error {
	return g.db.WithContext(ctx).Create(r).Error
}

func (g *GormStore) ListRaffles(ctx context.Context, status types.RaffleStatus) ([]models.Raffle, error) {
	var raffles []models.Raffle
	q := g.db.WithContext(ctx).Model(&models.Raffle{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("created_at desc").Find(&raffles).Error; err != nil {
		return nil, err
	}
	return raffles, nil
}

func (g *GormStore) DeleteRaffle(ctx context.Context, id string) error {
	res := g.db.WithContext(ctx).Delete(&models.Raffle{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrRaffleNotFound
	}
	return nil
}

func (g *GormStore) InsertTickets(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&tickets).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return types.Errorf(types.ErrTicketsExist, "raffle %s", tickets[0].RaffleID)
	}
	return err
}

func (g *GormStore) DeleteTickets(ctx context.Context, raffleID string) (int, error) {
	res := g.db.WithContext(ctx).Where("raffle_id = ?", raffleID).Delete(&models.Ticket{})
	return int(res.RowsAffected), res.Error
}

func (g *GormStore) DeleteTicketRange(ctx context.Context, raffleID string, from, to int) (int, error) {
	res := g.db.WithContext(ctx).
		Where("raffle_id = ? AND number BETWEEN ? AND ?", raffleID, from, to).
		Delete(&models.Ticket{})
	return int(res.RowsAffected), res.Error
}

func (g *GormStore) CountTickets(ctx context.Context, raffleID string) (map[types.TicketStatus]int, error) {
	var rows []struct {
		Status types.TicketStatus
		Count  int
	}
	err := g.db.WithContext(ctx).
		Model(&models.Ticket{}).
		Select("status, count(*) as count").
		Where("raffle_id = ?", raffleID).
		Group("status").
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}
	counts := map[types.TicketStatus]int{}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (g *GormStore) ListOrders(ctx context.Context, f models.OrderFilter) ([]models.Order, error) {
	q := g.db.WithContext(ctx).Model(&models.Order{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.RaffleID != "" {
		q = q.Where("raffle_id = ?", f.RaffleID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ExpiresBefore != nil {
		q = q.Where("expires_at < ?", *f.ExpiresBefore)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	orders := []models.Order{}
	if err := q.Order("created_at asc, id asc").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (g *GormStore) DeleteOrders(ctx context.Context, raffleID string) (int, error) {
	res := g.db.WithContext(ctx).Where("raffle_id = ?", raffleID).Delete(&models.Order{})
	return int(res.RowsAffected), res.Error
}

func (g *GormStore) UpsertUser(ctx context.Context, u *models.User) error {
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "email", "is_admin", "updated_at"}),
		}).
		Create(u).
		Error
}

type gormTx struct {
	db   *gorm.DB
	lock bool
}

func (tx *gormTx) GetRaffle(ctx context.Context, id string) (*models.Raffle, error) {
	var r models.Raffle
	q := tx.db
	if tx.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrRaffleNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (tx *gormTx) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	q := tx.db
	if tx.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (tx *gormTx) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := tx.db.First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (tx *gormTx) FindTickets(ctx context.Context, f models.TicketFilter) ([]models.Ticket, error) {
	q := tx.db.Model(&models.Ticket{}).Where("raffle_id = ?", f.RaffleID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.OrderID != "" {
		q = q.Where("order_id = ?", f.OrderID)
	}
	if len(f.Numbers) > 0 {
		q = q.Where("number IN ?", f.Numbers)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if tx.lock && f.Status == types.TICKET_AVAILABLE {
		// concurrent reservations pick disjoint rows instead of queueing on the same ones
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	tickets := []models.Ticket{}
	if err := q.Order("number asc").Find(&tickets).Error; err != nil {
		return nil, err
	}
	return tickets, nil
}

func (tx *gormTx) CreateOrder(ctx context.Context, o *models.Order) error {
	return tx.db.Create(o).Error
}

func (tx *gormTx) UpdateOrder(ctx context.Context, id string, u models.OrderUpdate) error {
	values := map[string]any{}
	if u.Status != nil {
		values["status"] = *u.Status
	}
	if u.PaidAt != nil {
		values["paid_at"] = *u.PaidAt
	}
	if u.CancelledAt != nil {
		values["cancelled_at"] = *u.CancelledAt
	}
	if u.PaymentProvider != nil {
		values["payment_provider"] = *u.PaymentProvider
	}
	if u.PaymentID != nil {
		values["payment_id"] = *u.PaymentID
	}
	if u.PaymentQRCode != nil {
		values["payment_qr_code"] = *u.PaymentQRCode
	}
	if u.PaymentTicketURL != nil {
		values["payment_ticket_url"] = *u.PaymentTicketURL
	}
	if len(values) == 0 {
		return nil
	}
	res := tx.db.Model(&models.Order{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrOrderNotFound
	}
	return nil
}

func (tx *gormTx) TransitionTickets(ctx context.Context, raffleID string, numbers []int, from types.TicketStatus, u models.TicketUpdate) error {
	if len(numbers) == 0 {
		return nil
	}
	values := map[string]any{"status": u.Status}
	if u.Owner != nil {
		values["user_id"] = u.Owner.UserID
		values["order_id"] = u.Owner.OrderID
		values["reserved_at"] = u.Owner.ReservedAt
	}
	if u.Release {
		values["user_id"] = nil
		values["order_id"] = nil
		values["reserved_at"] = nil
		values["purchased_at"] = nil
	}
	if u.PurchasedAt != nil {
		values["purchased_at"] = *u.PurchasedAt
	}
	res := tx.db.Model(&models.Ticket{}).
		Where("raffle_id = ? AND number IN ? AND status = ?", raffleID, numbers, from).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(numbers)) {
		return types.Errorf(types.ErrConflict, "%d of %d tickets of raffle %s were %s", res.RowsAffected, len(numbers), raffleID, from)
	}
	return nil
}

func (tx *gormTx) UpdateRaffle(ctx context.Context, id string, u models.RaffleUpdate) error {
	values := map[string]any{}
	if u.Status != nil {
		values["status"] = *u.Status
	}
	if u.TotalTickets != nil {
		values["total_tickets"] = *u.TotalTickets
	}
	if u.WinningNumber != nil {
		values["winning_number"] = *u.WinningNumber
	}
	if u.WinnerID != nil {
		values["winner_id"] = *u.WinnerID
	}
	if u.WinnerName != nil {
		values["winner_name"] = *u.WinnerName
	}
	if u.DrawnAt != nil {
		values["drawn_at"] = *u.DrawnAt
	}
	if len(values) == 0 {
		return nil
	}
	res := tx.db.Model(&models.Raffle{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrRaffleNotFound
	}
	return nil
}

func (tx *gormTx) IncrementRaffle(ctx context.Context, id string, c models.RaffleCounters) error {
	res := tx.db.Model(&models.Raffle{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"quantity_sold": gorm.Expr("quantity_sold + ?", c.Sold),
			"participants":  gorm.Expr("participants + ?", c.Participants),
			"revenue":       gorm.Expr("revenue + ?", c.Revenue),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrRaffleNotFound
	}
	return nil
}
