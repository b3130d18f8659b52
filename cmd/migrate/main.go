package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var (
		direction string
		steps     int
	)

	flag.StringVar(&direction, "direction", "up", "Migration direction: up, down, or version")
	flag.IntVar(&steps, "steps", 0, "Number of migration steps (0 = all directions)")
	flag.Parse()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN environment variable is required")
	}

	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		log.Fatalf("invalid POSTGRES_DSN: %v", err)
	}
	driver := strings.ToLower(strings.Split(u.Scheme, "+")[0])
	migrationsPath := fmt.Sprintf("file://migrations/%s", driver)

	fmt.Printf("running migrations: direction=%s steps=%d path=%s\n", direction, steps, migrationsPath)

	m, err := migrate.New(migrationsPath, dsn)
	if err != nil {
		log.Fatalf("migrate new: %v", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("migrate up failed: %v", err)
		}
		fmt.Println("migrations applied")

	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("migrate down failed: %v", err)
		}
		fmt.Println("migrations reverted")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("migrate version failed: %v", err)
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)

	default:
		log.Fatalf("unknown migration direction: %s", direction)
	}
}
