package repository

import (
	"fmt"

	"gorm.io/driver/postgres"

	"github.com/paykit-wallet/paykitd/pkg/logger"
)

// NewPostgresDB connects to PostgreSQL and migrates the schema.
func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (*GormDB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	db, err := openGorm(postgres.Open(dsn), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	logger.Info("Successfully connected to PostgreSQL", "host", host, "db", dbname)
	return db, nil
}
