/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_playout/internal/db"
	"github.com/friendsincode/grimnir_playout/internal/models"
)

var (
	resetForce bool
	resetAll   bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear play history and persisted playout state",
	Long: `Reset the station's persisted state.

This command will:
- Delete the station's play history and audit trail
- Forget the persisted ordering strategy, so the station file applies again

With --all every table is dropped and re-created, for all stations.

WARNING: This action is irreversible!

Examples:
  # Interactive reset (will prompt for confirmation)
  playoutd reset

  # Force reset without confirmation
  playoutd reset --force

  # Drop everything
  playoutd reset --force --all
`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "Drop and re-create every table")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	st, err := loadStation()
	if err != nil {
		return err
	}

	if !resetForce {
		scope := "station " + st.ID
		if resetAll {
			scope = "ALL stations"
		}
		fmt.Printf("This deletes play history, audit entries and playout state for %s.\n", scope)
		fmt.Print("Type 'yes' to confirm reset: ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close(database)

	if resetAll {
		logger.Info().Msg("Dropping all tables")
		if err := database.Migrator().DropTable(&models.PlayHistory{}, &models.StationState{}, &models.AuditLog{}); err != nil {
			return fmt.Errorf("drop tables: %w", err)
		}
		if err := db.Migrate(database); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		logger.Info().Msg("Reset complete")
		return nil
	}

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	err = database.Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.PlayHistory{}, &models.StationState{}, &models.AuditLog{}} {
			res := tx.Where("station_id = ?", st.ID).Delete(model)
			if res.Error != nil {
				return res.Error
			}
			logger.Info().Str("table", fmt.Sprintf("%T", model)).Int64("rows", res.RowsAffected).Msg("cleared")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset station %s: %w", st.ID, err)
	}

	logger.Info().Str("station", st.ID).Msg("Reset complete")
	return nil
}
