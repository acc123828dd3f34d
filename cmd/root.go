package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/app"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/config"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/server"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger"
)

var envFiles []string

var rootCmd = &cobra.Command{
	Use:           "field-booking-admin",
	Short:         "Admin chat service for the field booking dashboard",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.Load(envFiles...)
		if err != nil {
			return err
		}
		app.Invoke(conf, server.StartServer).Run()
		return nil
	},
}

func init() {
	rootCmd.Flags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before the environment is parsed")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.MustNamed("cmd").Errorw("command failed", "error", err)
		os.Exit(1)
	}
}
