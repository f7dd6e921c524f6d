package sinks

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	_ "github.com/lib/pq"

	"github.com/RecoveryAshes/catalogcrawl/internal/utils"
)

// SetupSchema 创建记录表及索引, 已存在时不做修改
func SetupSchema(ctx context.Context, dsn, schema, table string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("连接数据库失败 [%s]: %w", utils.RedactDSN(dsn), err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("数据库不可用 [%s]: %w", utils.RedactDSN(dsn), err)
	}

	for _, stmt := range schemaStatements(schema, table) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行失败 [%s]: %w", stmt, err)
		}
	}

	utils.Infof("✅ 数据表已就绪: %s.%s", schema, table)
	return nil
}

func schemaStatements(schema, table string) []string {
	qualified := pgx.Identifier{schema, table}.Sanitize()
	index := func(suffix, cols string) string {
		name := pgx.Identifier{"idx_" + table + "_" + suffix}.Sanitize()
		return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, qualified, cols)
	}

	return []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{schema}.Sanitize()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id SERIAL PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	price NUMERIC(12, 2) NOT NULL,
	unit_price NUMERIC(14, 4) NOT NULL,
	total_unit_quantity NUMERIC(12, 3) NOT NULL,
	unit_type VARCHAR(50) NOT NULL,
	category VARCHAR(255),
	sub_category VARCHAR(255),
	label_path TEXT[],
	comercial_name VARCHAR(100),
	comercial_id VARCHAR(50),
	listing_url TEXT,
	run_id VARCHAR(64),
	result_date DATE NOT NULL,
	result_time TIME NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`, qualified),
		index("comercial", "comercial_name, comercial_id"),
		index("date", "result_date"),
		index("category", "category"),
		index("name", "name"),
	}
}
