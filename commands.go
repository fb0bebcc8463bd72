package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shibayu36/personachat/llm"
	"github.com/shibayu36/personachat/memory"
	"github.com/shibayu36/personachat/server"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var addr string
	var allowedOrigins []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			orch, err := a.orchestrator()
			if err != nil {
				return err
			}
			if _, err := a.personas.List(); err != nil {
				return err
			}

			srv := server.New(server.Options{
				Orchestrator: orch,
				Personas:     a.personas,
				Configs:      a.configs,
				Themes:       a.themes,
				ListModels:   llm.ListModels,

				AllowedOrigins: allowedOrigins,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("personachat listening on %s\n", color.CyanString("http://%s", addr))
			if !orch.Settings().Configured() {
				fmt.Println(color.YellowString("Backend not configured yet: open the settings dialog in the browser."))
			}
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", envOr("PERSONACHAT_ADDR", "127.0.0.1:5000"), "listen address")
	cmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origin", splitList(os.Getenv("PERSONACHAT_ALLOWED_ORIGINS")), "extra origin allowed to call the API (repeatable)")
	return cmd
}

func newPersonasCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List persona prompt files",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			names, err := a.personas.List()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "PERSONA\tGREETING")
			for _, name := range names {
				p, err := a.personas.Load(name)
				if err != nil {
					fmt.Fprintf(w, "%s\t%s\n", name, color.RedString("(%v)", err))
					continue
				}
				fmt.Fprintf(w, "%s\t%s\n", name, p.Greeting)
			}
			return w.Flush()
		},
	}
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved conversations, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			summaries, err := a.history.ListSummaries()
			if err != nil {
				return fmt.Errorf("failed to get conversations: %w", err)
			}
			if len(summaries) == 0 {
				fmt.Println("No conversations found.")
				return nil
			}
			if limit > 0 && len(summaries) > limit {
				summaries = summaries[:limit]
			}

			fmt.Println("Recent conversations:")
			fmt.Printf("%-10s %-20s %-16s %s\n", "ID", "Updated At", "Persona", "Title")
			fmt.Println(strings.Repeat("-", 80))
			for _, s := range summaries {
				fmt.Printf("%s %-20s %-16s %s\n",
					color.CyanString("%-10s", s.ID),
					s.UpdatedAt.Format(memory.TimestampLayout),
					s.PromptFile,
					truncateTitle(s.Title, 40),
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of conversations to show (0 for all)")
	return cmd
}

func newModelsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg, err := a.configs.Load()
			if err != nil {
				return err
			}
			if !cfg.Configured() {
				return fmt.Errorf("backend is not configured: set MY_API_KEY and MY_API_URL in %s", a.configs.Path())
			}

			models, err := llm.ListModels(cmd.Context(), cfg.APIKey, cfg.BaseURL)
			if err != nil {
				return err
			}
			for _, m := range models {
				if m == cfg.Model {
					fmt.Println(color.GreenString("%s (default)", m))
					continue
				}
				fmt.Println(m)
			}
			return nil
		},
	}
}

func newThemesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "themes",
		Short: "List UI themes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			names, err := a.themes.List()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import a theme from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			t, err := a.themes.Import(data)
			if err != nil {
				return err
			}
			fmt.Printf("%s imported theme %s\n", color.GreenString("✓"), t.Name)
			return nil
		},
	})
	return cmd
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func truncateTitle(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
