package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jkassis/bbstore/internal/msg"
	"github.com/jkassis/bbstore/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print every outstanding message",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Shutdown()

		fmt.Fprintln(cmd.OutOrStdout(), s.Status(cmd.Context(), store.ParseStatusFormat(format)))
		return nil
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of outstanding messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Shutdown()

		// the counter is rebuilt by a load
		if _, err := s.Load(cmd.Context(), func(*msg.Msg) {}); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s.Messages())
		return nil
	},
}

func init() {
	statusCmd.Flags().String("format", "plain", "plain, html or xml")
}
