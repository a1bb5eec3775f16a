package main

import (
	"fmt"

	"github.com/notevault/vaultbridge/src/chatstore"
)

// MigrateCmd opens the database, which applies any pending migrations.
type MigrateCmd struct{}

func (c *MigrateCmd) Run(cli *CLI) error {
	cfg, logger, err := loadConfig(cli)
	if err != nil {
		return err
	}

	db, err := chatstore.Open(cfg.Store.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer db.Close()

	fmt.Printf("Database at %s is up to date.\n", cfg.Store.DatabasePath)
	return nil
}
