package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Manage the learned selector promotion store",
}

var promoteResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every learned promotion, forcing a fresh match on the next run of each step",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		if err := st.ResetPromotions(); err != nil {
			return fmt.Errorf("failed to reset promotions: %w", err)
		}
		fmt.Println("promotion store reset")
		return nil
	},
}

func init() {
	promoteCmd.AddCommand(promoteResetCmd)
}
