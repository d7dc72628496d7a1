package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/memory"
	"github.com/YelzhanWeb/pizzaline/internal/adapter/postgres"
	"github.com/YelzhanWeb/pizzaline/internal/app/calendar"
	"github.com/YelzhanWeb/pizzaline/internal/config"
	"github.com/YelzhanWeb/pizzaline/internal/domain"
)

func newSlotsCmd(load configLoader) *cobra.Command {
	var (
		businessID string
		date       string
	)

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print slot availability of a business for one day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return printSlots(cmd.Context(), cmd.OutOrStdout(), cfg, businessID, date)
		},
	}
	cmd.Flags().StringVar(&businessID, "business", "", "Business id")
	cmd.Flags().StringVar(&date, "date", "", "Date as YYYY-MM-DD, default today")
	_ = cmd.MarkFlagRequired("business")
	return cmd
}

func printSlots(ctx context.Context, out io.Writer, cfg *config.Config, businessID, date string) error {
	businesses, err := cfg.DomainBusinesses()
	if err != nil {
		return err
	}
	directory, err := memory.NewBusinessDirectory(businesses)
	if err != nil {
		return err
	}
	b, err := directory.Get(ctx, businessID)
	if err != nil {
		return err
	}

	day := time.Now().In(b.Location())
	if date != "" {
		parsed, err := time.ParseInLocation(domain.DateLayout, date, b.Location())
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", date, err)
		}
		day = parsed
	}

	var db postgres.DB
	if cfg.Capacity.Backend == config.BackendPostgres {
		db, err = connectDatabase(ctx, cfg, newLogger(cfg, "slots"))
		if err != nil {
			return err
		}
		defer db.Close()
	}
	capacity, _ := stores(cfg, db)

	slots, err := calendar.New(capacity).AvailableSlots(ctx, b, day)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SLOT\tOCCUPIED\tCAPACITY\tAVAILABLE\n")
	for _, s := range slots {
		fmt.Fprintf(w, "%s-%s\t%d\t%d\t%t\n", s.SlotStart, s.SlotEnd, s.Occupied, s.Capacity, s.Available)
	}
	return w.Flush()
}
