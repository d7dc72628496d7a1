package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/YelzhanWeb/pizzaline/internal/config"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type configLoader func() (*config.Config, error)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "pizzaline",
		Short:         "Phone-order conversations with per-slot kitchen capacity",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the YAML configuration file")

	load := func() (*config.Config, error) {
		path := configPath
		// без файла по умолчанию работаем на дефолтах и env
		if !root.PersistentFlags().Changed("config") {
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				path = ""
			}
		}
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(newServeCmd(load))
	root.AddCommand(newRecorderCmd(load))
	root.AddCommand(newMigrateCmd(load))
	root.AddCommand(newSlotsCmd(load))

	return root
}
