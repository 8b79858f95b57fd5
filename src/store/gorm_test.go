package store

import (
	"context"
	"fmt"
	"raffles/src/models"
	"raffles/src/types"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSqliteStore(t *testing.T) *GormStore {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	s := NewGormStore(gdb)
	require.NoError(t, s.Migrate())
	return s
}

func TestGormStoreSqlite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func() Store { return newSqliteStore(t) }})
}

func TestGormStoreSkipsLockingOnSqlite(t *testing.T) {
	s := newSqliteStore(t)
	defer s.Close()
	assert.False(t, s.lock)
}

func newMockGormStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB, PreferSimpleProtocol: true}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return NewGormStore(gdb), mock
}

func TestGormTransitionTicketsConflictOnPostgres(t *testing.T) {
	s, mock := newMockGormStore(t)
	assert.True(t, s.lock)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "tickets" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.TransitionTickets(ctx, "r1", []int{1, 2}, types.TICKET_AVAILABLE, models.TicketUpdate{
			Status: types.TICKET_RESERVED,
			Owner:  &models.TicketOwner{UserID: "alice", OrderID: "o1"},
		})
	})
	assert.ErrorIs(t, err, types.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormFindAvailableTicketsSkipsLockedRows(t *testing.T) {
	s, mock := newMockGormStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "tickets" WHERE raffle_id = .+ AND status = .+ ORDER BY number asc LIMIT .+ FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "raffle_id", "number", "status"}).
			AddRow("r1_1", "r1", 1, "available").
			AddRow("r1_2", "r1", 2, "available"))
	mock.ExpectCommit()

	var tickets []models.Ticket
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		var err error
		tickets, err = tx.FindTickets(ctx, models.TicketFilter{RaffleID: "r1", Status: types.TICKET_AVAILABLE, Limit: 2})
		return err
	})
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
