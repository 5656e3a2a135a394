package cli

import (
	"fmt"

	"support360/internal/store"

	"github.com/spf13/cobra"
)

var seedFlags struct {
	customers, agents, tickets, messages, articles int
	randomSeed                                     int64
}

// seedCmd fills an empty store with synthetic data. A populated store is left untouched.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate an empty store with demo data",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Seed.Enabled = true
		flags := cmd.Flags()
		if flags.Changed("customers") {
			cfg.Seed.Customers = seedFlags.customers
		}
		if flags.Changed("agents") {
			cfg.Seed.Agents = seedFlags.agents
		}
		if flags.Changed("tickets") {
			cfg.Seed.Tickets = seedFlags.tickets
		}
		if flags.Changed("messages") {
			cfg.Seed.Messages = seedFlags.messages
		}
		if flags.Changed("articles") {
			cfg.Seed.Articles = seedFlags.articles
		}
		if flags.Changed("random-seed") {
			cfg.Seed.RandomSeed = seedFlags.randomSeed
		}

		persister, err := store.OpenPersister(cfg, logger)
		if err != nil {
			return err
		}
		_, populated, err := persister.Load(cmd.Context(), store.SlotUsers)
		if err != nil {
			persister.Close()
			return err
		}
		st := store.New(store.Options{
			Persister:       persister,
			Logger:          logger,
			Seed:            cfg.Seed,
			DefaultPassword: cfg.Auth.DefaultPassword,
			BcryptCost:      cfg.Auth.BcryptCost,
		})
		defer st.Close()
		if err := st.Initialize(cmd.Context()); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if populated {
			fmt.Fprintln(out, "Store already contains data; nothing seeded.")
		} else {
			fmt.Fprintf(out, "Seeded store. Admin login: %s / %s\n", store.AdminEmail, cfg.Auth.DefaultPassword)
		}
		for _, k := range []string{"users", "tickets", "messages", "articles", "comments"} {
			fmt.Fprintf(out, "  %-9s %d\n", k, st.Stats()[k])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	f := seedCmd.Flags()
	f.IntVar(&seedFlags.customers, "customers", 200, "number of customers")
	f.IntVar(&seedFlags.agents, "agents", 50, "number of agents")
	f.IntVar(&seedFlags.tickets, "tickets", 1000, "number of tickets")
	f.IntVar(&seedFlags.messages, "messages", 5000, "number of messages")
	f.IntVar(&seedFlags.articles, "articles", 30, "number of knowledge base articles")
	f.Int64Var(&seedFlags.randomSeed, "random-seed", 0, "random seed, 0 for time based")
}
