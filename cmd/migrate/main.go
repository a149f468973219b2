// migrate applies the embedded schema migrations: go run ./cmd/migrate [-direction down]
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"nestcare/backend/internal/config"
	"nestcare/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "migration direction, up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	err = migrate.Run(cfg.DatabaseURL, migrate.Direction(*direction))
	switch {
	case err == nil:
	case errors.Is(err, migrate.ErrNoChange):
		fmt.Println("schema already up to date")
	default:
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
