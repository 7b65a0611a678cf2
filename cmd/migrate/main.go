// migrate applies the portal schema from embedded SQL; go run ./cmd/migrate [-direction up|down|version].
package main

import (
	"flag"
	"fmt"
	"os"

	"backoffice/portal/internal/config"
	"backoffice/portal/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up, down, or version to print the applied version")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, migrate.ErrNoDSN)
		os.Exit(1)
	}

	if *direction == "version" {
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		fmt.Printf("version %d (dirty=%t)\n", v, dirty)
		return
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
