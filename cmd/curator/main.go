package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TobiSchelling/curator/internal/app"
	"github.com/TobiSchelling/curator/internal/config"
	"github.com/TobiSchelling/curator/internal/models"
	"github.com/TobiSchelling/curator/internal/pipeline"
	"github.com/TobiSchelling/curator/internal/scheduler"
	"github.com/TobiSchelling/curator/internal/server"
)

var version = "dev"

var (
	verbose bool
	cfg     *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "curator",
	Short:   "Curated AI news digests",
	Long:    "Curator collects articles, scores and balances them across categories, and turns the selection into reviewable digest reports.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(viper.GetString("config"))
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if dir := viper.GetString("data-dir"); dir != "" {
			cfg.Output.DataDir = dir
		}
		if cfg.Logging.Debug() {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		}
		return nil
	},
}

func init() {
	viper.SetEnvPrefix("CURATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().String("data-dir", "", "Override the data directory")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(articlesCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("curator", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/curator/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure target feeds, categories, quotas, and the LLM provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show article and report counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			st, err := a.Status(ctx)
			if err != nil {
				return fmt.Errorf("getting status: %w", err)
			}

			tw := newTable()
			tw.AppendHeader(table.Row{"Articles", "Count"})
			for _, s := range models.ArticleStatuses {
				tw.AppendRow(table.Row{s.String(), st.Articles[s.String()]})
			}
			tw.Render()

			tw = newTable()
			tw.AppendHeader(table.Row{"Reports", "Count"})
			for _, s := range models.ReportStatuses {
				tw.AppendRow(table.Row{s.String(), st.Reports[s.String()]})
			}
			tw.Render()

			records, ok, err := a.StorageRecords(ctx)
			if err != nil {
				return err
			}
			if ok {
				tw = newTable()
				tw.AppendHeader(table.Row{"Record", "Bytes", "Revision", "Updated"})
				for _, r := range records {
					tw.AppendRow(table.Row{r.Name, r.Bytes, r.Revision, r.UpdatedAt})
				}
				tw.Render()
			}

			if st.LatestLog != nil {
				fmt.Printf("\nLatest: [%s] %s\n", st.LatestLog.Severity, st.LatestLog.Message)
			}
			return nil
		})
	},
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect articles from the configured target URLs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			fmt.Println("Collecting articles...")
			res, err := a.Engine.Collect(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("  New articles: %d\n", res.Inserted)
			return nil
		})
	},
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Score, filter, and balance collected articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Engine.Process(ctx)
			if res != nil {
				printProcess(res)
			}
			return err
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one automated cycle: collect -> process -> generate",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.RunScheduled(ctx); err != nil {
				return err
			}
			fmt.Println("Run complete.")
			return nil
		})
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a report from the selected articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			r, err := a.Reports.Generate(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Generated report %s: %s (%d articles)\n", r.ID, r.Title, len(r.IncludedArticleIDs))
			fmt.Println("Review it, then run: curator publish", r.ID)
			return nil
		})
	},
}

var publishFile string

var publishCmd = &cobra.Command{
	Use:   "publish <report-id>",
	Short: "Publish a report, optionally with an edited body",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var markdown string
		if publishFile != "" {
			data, err := os.ReadFile(publishFile)
			if err != nil {
				return fmt.Errorf("reading %s: %w", publishFile, err)
			}
			markdown = string(data)
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			r, err := a.Reports.Publish(ctx, args[0], markdown)
			if err != nil {
				return err
			}
			fmt.Printf("Published report %s: %s\n", r.ID, r.Title)
			return nil
		})
	},
}

var articlesStatus string

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "List articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			var (
				list []models.Article
				err  error
			)
			if articlesStatus == "" {
				list, err = a.Articles.ListAll(ctx)
			} else {
				status, perr := models.ParseArticleStatus(strings.ToUpper(articlesStatus))
				if perr != nil {
					return perr
				}
				list, err = a.Articles.ListByStatus(ctx, status)
			}
			if err != nil {
				return err
			}

			tw := newTable()
			tw.AppendHeader(table.Row{"ID", "Status", "Score", "Category", "Title", "Source"})
			for _, art := range list {
				score := ""
				if art.Assessment != nil {
					score = strconv.Itoa(art.Score())
				}
				tw.AppendRow(table.Row{shortID(art.ID), art.Status, score, art.Category(), truncate(art.Title, 60), art.Source})
			}
			tw.Render()
			return nil
		})
	},
}

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			reports, err := a.Reports.List(ctx)
			if err != nil {
				return err
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"ID", "Generated", "Status", "Articles", "Title"})
			for _, r := range reports {
				tw.AppendRow(table.Row{r.ID, r.GeneratedAt.Format("2006-01-02 15:04"), r.Status, len(r.IncludedArticleIDs), r.Title})
			}
			tw.Render()
			return nil
		})
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the activity log, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			entries, err := a.Audit.List(ctx)
			if err != nil {
				return err
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Time", "Type", "Message"})
			for _, e := range entries {
				tw.AppendRow(table.Row{e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Severity, e.Message})
			}
			tw.Render()
			return nil
		})
	},
}

// --- config command ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the curation settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective curation settings as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			s, err := a.Settings.Get(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		})
	},
}

var configThresholdCmd = &cobra.Command{
	Use:   "set-threshold <1-5>",
	Short: "Set the minimum score for selection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid threshold: %s", args[0])
		}
		return updateSettings(cmd, func(s *models.Settings) { s.ScoreThreshold = threshold })
	},
}

var configQuotaCmd = &cobra.Command{
	Use:   "set-quota <category> <count>",
	Short: "Set the minimum number of selected articles for a category",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid quota: %s", args[1])
		}
		return updateSettings(cmd, func(s *models.Settings) { s.CategoryQuotas[args[0]] = n })
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configThresholdCmd)
	configCmd.AddCommand(configQuotaCmd)
	articlesCmd.Flags().StringVarP(&articlesStatus, "status", "s", "", "Filter by status (RAW, SCORED, SELECTED, ARCHIVED)")
	publishCmd.Flags().StringVarP(&publishFile, "file", "f", "", "Publish the Markdown in this file instead of the stored body")
}

func updateSettings(cmd *cobra.Command, mutate func(*models.Settings)) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		s, err := a.Settings.Get(ctx)
		if err != nil {
			return err
		}
		mutate(&s)
		if err := a.Settings.Save(ctx, s); err != nil {
			return err
		}
		fmt.Println("Configuration saved.")
		return nil
	})
}

// --- serve command ---

var serveSchedule bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		port := viper.GetInt("port")
		if port == 0 {
			port = cfg.Server.Port
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			schedErr := make(chan error, 1)
			if serveSchedule {
				runner := scheduler.NewRunner(a.Settings, func(ctx context.Context) error {
					if err := a.RunScheduled(ctx); err != nil {
						log.Printf("Scheduled run failed: %v", err)
					}
					return nil
				})
				go func() { schedErr <- runner.Run(ctx) }()
				log.Printf("Scheduler enabled")
			}

			fmt.Printf("Starting server at http://localhost:%d\n", port)
			err := server.Serve(ctx, a, port)
			cancel()
			if serveSchedule {
				if serr := <-schedErr; serr != nil && !errors.Is(serr, context.Canceled) {
					log.Printf("Scheduler stopped: %v", serr)
				}
			}
			return err
		})
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "Port to run server on (default from config)")
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", false, "Run the automated trigger on the configured schedule")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}

// --- helpers ---

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := app.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printProcess(res *pipeline.ProcessResult) {
	fmt.Println("Processing:")
	fmt.Printf("  Scored: %d of %d (%d fallbacks)\n", res.Score.Scored, res.Score.Pending, res.Score.Fallbacks)
	fmt.Printf("  Selected: %d, archived: %d\n", res.Filter.Selected, res.Filter.Archived)
	for _, p := range res.Balance.Promotions {
		fmt.Printf("  Promoted [%s] %s (score %d)\n", p.Category, p.Title, p.Score)
	}
	for _, s := range res.Balance.Shortfalls {
		fmt.Printf("  Quota short for %s: %d of %d\n", s.Category, s.Selected, s.Quota)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
