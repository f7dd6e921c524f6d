package sinks

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RecoveryAshes/catalogcrawl/internal/models"
	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// PostgresSink 逐条插入PostgreSQL
type PostgresSink struct {
	pool   *pgxpool.Pool
	insert string
}

// NewPostgresSink 连接数据库并检查连通性
func NewPostgresSink(ctx context.Context, dsn, schema, table string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败 [%s]: %w", utils.RedactDSN(dsn), err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("数据库不可用 [%s]: %w", utils.RedactDSN(dsn), err)
	}

	utils.Infof("🗄️  已连接PostgreSQL: %s", utils.RedactDSN(dsn))
	return &PostgresSink{pool: pool, insert: insertSQL(schema, table)}, nil
}

func insertSQL(schema, table string) string {
	return fmt.Sprintf(`INSERT INTO %s (
	name, price, unit_price, total_unit_quantity, unit_type,
	category, sub_category, label_path, comercial_name, comercial_id,
	listing_url, run_id, result_date, result_time
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::text::date, $14::text::time)`,
		pgx.Identifier{schema, table}.Sanitize())
}

// Persist 插入一条记录
func (s *PostgresSink) Persist(ctx context.Context, r models.ProductRecord) error {
	_, err := s.pool.Exec(ctx, s.insert,
		r.Name, r.Price, r.UnitPrice, r.Quantity, r.UnitType,
		r.Category, r.SubCategory, r.LabelPath, r.SourceName, r.SourceID,
		r.ListingURL, r.RunID, r.ResultDate(), r.ResultTime(),
	)
	if err != nil {
		return fmt.Errorf("插入记录失败: %w", err)
	}
	return nil
}

// Close 关闭连接池
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
