package postgres

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// RunMigrations applies the schema under migrations/<driver> to dsn. The
// driver is derived from the DSN's scheme (e.g. "postgres"). DSNs may
// carry credentials, so only the host and driver are logged.
func RunMigrations(dsn string, logger *zap.Logger) error {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return fmt.Errorf("postgres: empty data source name")
	}

	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("postgres: invalid data source name: %w", err)
	}

	driver := strings.ToLower(strings.Split(u.Scheme, "+")[0])
	migrationsPath := fmt.Sprintf("file://migrations/%s", driver)

	logger.Info("migrate: start", zap.String("driver", driver), zap.String("host", u.Host), zap.String("path", migrationsPath))

	m, err := migrate.New(migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("postgres: migrate new: %w", err)
	}
	defer func() {
		if serr, derr := m.Close(); serr != nil || derr != nil {
			logger.Warn("migrate: close error", zap.Error(serr), zap.Error(derr))
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("migrate: no change", zap.String("driver", driver))
			return nil
		}
		return fmt.Errorf("postgres: migrate up: %w", err)
	}

	logger.Info("migrate: applied", zap.String("driver", driver))
	return nil
}
