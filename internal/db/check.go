package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rovshanmuradov/topup-shop-bot/internal/logging"
)

// Ping reports whether the database answers.
func Ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("error getting sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// CheckSchema logs the columns of the ledger tables and fails if one is missing.
func CheckSchema(gdb *gorm.DB) error {
	for _, model := range []any{&User{}, &PaymentRequest{}} {
		if !gdb.Migrator().HasTable(model) {
			return fmt.Errorf("table for %T is missing", model)
		}

		columns, err := gdb.Migrator().ColumnTypes(model)
		if err != nil {
			logging.Error("Error getting table structure", zap.Error(err))
			return err
		}
		for _, col := range columns {
			logging.Debug("Column info",
				zap.String("table", fmt.Sprintf("%T", model)),
				zap.String("column", col.Name()),
				zap.String("type", col.DatabaseTypeName()),
			)
		}
	}
	return nil
}
