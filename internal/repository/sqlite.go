package repository

import (
	"fmt"

	"github.com/glebarez/sqlite"

	"github.com/paykit-wallet/paykitd/pkg/logger"
)

// NewSQLiteDB opens (or creates) the wallet database file at path.
func NewSQLiteDB(path string, logger *logger.Logger) (*GormDB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := openGorm(sqlite.Open(dsn), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database %q: %w", path, err)
	}
	logger.Info("Opened SQLite wallet database", "path", path)
	return db, nil
}
