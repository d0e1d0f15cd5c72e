package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"tabscope/app"
	"tabscope/config"
	"tabscope/log"
	"tabscope/session"
	"tabscope/stream"
)

var (
	version     = "0.3.1"
	programFlag string
	pathFlag    string

	rootCmd = &cobra.Command{
		Use:   "tabscope",
		Short: "Tabscope - Interpreted terminal tabs for interactive coding agents.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			log.Initialize()
			defer log.Close()
			log.InitDebug()
			defer log.CloseDebug()

			return app.Run(ctx, programFlag, pathFlag)
		},
	}

	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Reset all stored tabs",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Initialize()
			defer log.Close()

			state := config.LoadState()
			storage, err := session.NewStorage(state)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			if err := storage.DeleteAllTabs(); err != nil {
				return fmt.Errorf("failed to reset storage: %w", err)
			}
			fmt.Println("Storage has been reset successfully")

			return nil
		},
	}

	patternsCmd = &cobra.Command{
		Use:   "patterns",
		Short: "Print the effective risky-operation pattern table",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Initialize()
			defer log.Close()

			cfg := config.LoadConfig()
			lib := stream.DefaultLibrary()
			if cfg.RiskyPatternsPath != "" {
				loaded, err := stream.LoadLibrary(cfg.RiskyPatternsPath)
				if err != nil {
					return fmt.Errorf("failed to load pattern override %s: %w", cfg.RiskyPatternsPath, err)
				}
				lib = loaded
			}

			for _, p := range lib.Risky() {
				fmt.Printf("%-28s %-8s %s\n", p.Name, p.Severity, p.Reason)
			}

			return nil
		},
	}

	debugCmd = &cobra.Command{
		Use:   "debug",
		Short: "Print debug information like config paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Initialize()
			defer log.Close()

			cfg := config.LoadConfig()

			configDir, err := config.GetConfigDir()
			if err != nil {
				return fmt.Errorf("failed to get config directory: %w", err)
			}
			configJson, _ := json.MarshalIndent(cfg, "", "  ")

			fmt.Printf("Config: %s\n%s\n", filepath.Join(configDir, config.ConfigFileName), configJson)

			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of tabscope",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tabscope version %s\n", version)
		},
	}
)

func init() {
	rootCmd.Flags().StringVarP(&programFlag, "program", "p", "",
		"Program to run in new tabs (e.g. 'claude --verbose')")
	rootCmd.Flags().StringVarP(&pathFlag, "path", "C", "",
		"Project directory for new tabs (defaults to the working directory)")

	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(patternsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
	}
}
