// 文件: pkg/calc/repository.go
package calc

import (
	"context"
	"errors"
)

var (
	ErrCalculationNotFound = errors.New("calculation not found")
	ErrInvalidColumn       = errors.New("invalid column name")
	ErrEmptyBatch          = errors.New("no rows provided")
)

type InputRepository interface {
	// 创建
	Create(ctx context.Context, in *Input) error

	// 查询
	FindByID(ctx context.Context, calcID int64) (*Input, error)
	ListRecent(ctx context.Context, limit int) ([]*Input, error)
	FindByTimeToExpiry(ctx context.Context, t float64) ([]*Input, error)
	FindByVolRange(ctx context.Context, lower, upper float64) ([]*Input, error)

	// 删除
	Delete(ctx context.Context, calcID int64) (bool, error)
}

type OutputRepository interface {
	// 批量写入
	CreateBatch(ctx context.Context, rows []*Output) (int64, error)

	// 查询
	FindByCalculation(ctx context.Context, calcID int64) ([]*Output, error)
	FindByScenario(ctx context.Context, calcID int64, volShock, spotShock float64) ([]*Output, error)
	FindBySide(ctx context.Context, calcID int64, isCall bool) ([]*Output, error)
	ColumnStats(ctx context.Context, calcID int64, column string) (*ColumnStats, error)

	// 删除
	DeleteByCalculation(ctx context.Context, calcID int64) (int64, error)
}

// Store 输入、输出两个仓库，以及把二者放进同一事务的能力
type Store interface {
	Inputs() InputRepository
	Outputs() OutputRepository

	// Transaction fn 返回错误时回滚，tx 内的仓库绑定到该事务
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
