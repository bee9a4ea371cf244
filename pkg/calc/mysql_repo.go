// 文件: pkg/calc/mysql_repo.go
package calc

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// 单次 INSERT 的最大行数 (20x20 的曲面是 800 行)
const insertBatchSize = 500

// =============================================================================
// Store
// =============================================================================

type MySQLStore struct {
	db      *gorm.DB
	inputs  *MySQLInputRepository
	outputs *MySQLOutputRepository
}

func NewMySQLStore(db *gorm.DB) *MySQLStore {
	return &MySQLStore{
		db:      db,
		inputs:  NewMySQLInputRepository(db),
		outputs: NewMySQLOutputRepository(db),
	}
}

func (s *MySQLStore) Inputs() InputRepository   { return s.inputs }
func (s *MySQLStore) Outputs() OutputRepository { return s.outputs }

// Transaction 执行事务
func (s *MySQLStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewMySQLStore(tx))
	})
}

// =============================================================================
// 输入仓库
// =============================================================================

type MySQLInputRepository struct {
	db *gorm.DB
}

func NewMySQLInputRepository(db *gorm.DB) *MySQLInputRepository {
	return &MySQLInputRepository{db: db}
}

func (r *MySQLInputRepository) Create(ctx context.Context, in *Input) error {
	return r.db.WithContext(ctx).Create(in).Error
}

func (r *MySQLInputRepository) FindByID(ctx context.Context, calcID int64) (*Input, error) {
	var in Input
	err := r.db.WithContext(ctx).Where("CalculationId = ?", calcID).First(&in).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCalculationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (r *MySQLInputRepository) ListRecent(ctx context.Context, limit int) ([]*Input, error) {
	var inputs []*Input
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&inputs).Error
	return inputs, err
}

func (r *MySQLInputRepository) FindByTimeToExpiry(ctx context.Context, t float64) ([]*Input, error) {
	var inputs []*Input
	err := r.db.WithContext(ctx).
		Where("TimeToExpiry = ?", t).
		Order("created_at DESC").
		Find(&inputs).Error
	return inputs, err
}

func (r *MySQLInputRepository) FindByVolRange(ctx context.Context, lower, upper float64) ([]*Input, error) {
	if lower > upper {
		lower, upper = upper, lower
	}
	var inputs []*Input
	err := r.db.WithContext(ctx).
		Where("Volatility BETWEEN ? AND ?", lower, upper).
		Order("created_at DESC").
		Find(&inputs).Error
	return inputs, err
}

func (r *MySQLInputRepository) Delete(ctx context.Context, calcID int64) (bool, error) {
	result := r.db.WithContext(ctx).Where("CalculationId = ?", calcID).Delete(&Input{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// =============================================================================
// 输出仓库
// =============================================================================

type MySQLOutputRepository struct {
	db *gorm.DB
}

func NewMySQLOutputRepository(db *gorm.DB) *MySQLOutputRepository {
	return &MySQLOutputRepository{db: db}
}

// CreateBatch 批量插入，返回写入行数
func (r *MySQLOutputRepository) CreateBatch(ctx context.Context, rows []*Output) (int64, error) {
	if len(rows) == 0 {
		return 0, ErrEmptyBatch
	}
	result := r.db.WithContext(ctx).CreateInBatches(rows, insertBatchSize)
	return result.RowsAffected, result.Error
}

func (r *MySQLOutputRepository) FindByCalculation(ctx context.Context, calcID int64) ([]*Output, error) {
	var outputs []*Output
	err := r.db.WithContext(ctx).
		Where("CalculationId = ?", calcID).
		Order("CalculationOutputId ASC").
		Find(&outputs).Error
	return outputs, err
}

func (r *MySQLOutputRepository) FindByScenario(ctx context.Context, calcID int64, volShock, spotShock float64) ([]*Output, error) {
	var outputs []*Output
	err := r.db.WithContext(ctx).
		Where("CalculationId = ? AND VolatilityShock = ? AND StockPriceShock = ?", calcID, volShock, spotShock).
		Find(&outputs).Error
	return outputs, err
}

func (r *MySQLOutputRepository) FindBySide(ctx context.Context, calcID int64, isCall bool) ([]*Output, error) {
	var outputs []*Output
	err := r.db.WithContext(ctx).
		Where("CalculationId = ? AND IsCall = ?", calcID, isCall).
		Order("CalculationOutputId ASC").
		Find(&outputs).Error
	return outputs, err
}

// ColumnStats 统计某列的分布，列名只能取白名单中的值
func (r *MySQLOutputRepository) ColumnStats(ctx context.Context, calcID int64, column string) (*ColumnStats, error) {
	if _, ok := statsColumns[column]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidColumn, column)
	}

	var st ColumnStats
	err := r.db.WithContext(ctx).
		Model(&Output{}).
		Select(fmt.Sprintf("COALESCE(MIN(%[1]s), 0) AS min_val, COALESCE(MAX(%[1]s), 0) AS max_val, COALESCE(AVG(%[1]s), 0) AS avg_val, COUNT(*) AS total_rows", column)).
		Where("CalculationId = ?", calcID).
		Scan(&st).Error
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *MySQLOutputRepository) DeleteByCalculation(ctx context.Context, calcID int64) (int64, error) {
	result := r.db.WithContext(ctx).Where("CalculationId = ?", calcID).Delete(&Output{})
	return result.RowsAffected, result.Error
}
