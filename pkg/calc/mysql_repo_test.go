package calc

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupMySQL 需要本地 MySQL：
// MYSQL_DSN="root:root@tcp(localhost:3306)/bspnl_test?charset=utf8mb4&parseTime=True&loc=Local"
func setupMySQL(t *testing.T) *gorm.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("skipping test; MYSQL_DSN not set")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Skipf("skipping test; mysql not available: %v", err)
	}
	require.NoError(t, Migrate(db))
	return db
}

func TestMySQLRepositories(t *testing.T) {
	db := setupMySQL(t)
	ctx := context.Background()

	ids, err := NewSnowflakeGenerator(7)
	require.NoError(t, err)
	store := NewMySQLStore(db)
	inputs, outputs := store.Inputs(), store.Outputs()
	svc := NewService(store, nil, ids, discardLogger())

	calcID, err := svc.Save(ctx, buildSurface(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Delete(context.Background(), calcID) })

	got, err := svc.Get(ctx, calcID)
	require.NoError(t, err)
	require.Equal(t, entry.SpotPrice, got.Input.Params().SpotPrice)
	require.Len(t, got.Outputs, 12)

	byVol, err := svc.ByVolRange(ctx, 0.39, 0.41)
	require.NoError(t, err)
	require.NotEmpty(t, byVol)

	scen, err := svc.Scenario(ctx, calcID, 0.4, 50)
	require.NoError(t, err)
	require.Len(t, scen, 2)

	st, err := svc.ColumnStats(ctx, calcID, ColumnVolatilityShock)
	require.NoError(t, err)
	require.InDelta(t, 0.3, st.MinVal, 1e-9)
	require.InDelta(t, 0.4, st.MaxVal, 1e-9)
	require.Equal(t, int64(12), st.TotalRows)

	_, err = outputs.ColumnStats(ctx, calcID, "CalculationId")
	require.ErrorIs(t, err, ErrInvalidColumn)

	_, err = outputs.CreateBatch(ctx, nil)
	require.ErrorIs(t, err, ErrEmptyBatch)

	require.NoError(t, svc.Delete(ctx, calcID))
	_, err = inputs.FindByID(ctx, calcID)
	require.ErrorIs(t, err, ErrCalculationNotFound)
}

func TestMySQLStore_TransactionRollback(t *testing.T) {
	db := setupMySQL(t)
	ctx := context.Background()
	store := NewMySQLStore(db)

	ids, err := NewSnowflakeGenerator(8)
	require.NoError(t, err)
	calcID := ids.NextID()
	in, err := NewInput(calcID, entry.Record())
	require.NoError(t, err)

	err = store.Transaction(ctx, func(tx Store) error {
		require.NoError(t, tx.Inputs().Create(ctx, in))
		_, err := tx.Outputs().CreateBatch(ctx, nil)
		return err
	})
	require.ErrorIs(t, err, ErrEmptyBatch)

	_, err = store.Inputs().FindByID(ctx, calcID)
	require.ErrorIs(t, err, ErrCalculationNotFound)
}
