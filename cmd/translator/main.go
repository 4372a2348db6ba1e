package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yourorg/genai-translator/internal/config"
	"github.com/yourorg/genai-translator/internal/logger"
	"github.com/yourorg/genai-translator/internal/server"
	"github.com/yourorg/genai-translator/internal/store"
	"github.com/yourorg/genai-translator/internal/translate"
)

const defaultConfigContent = `llm:
  api_key: ""
  base_url: "https://api.openai.com/v1"
  model: "gpt-4o-mini"
  temperature: 0.3
  timeout: 0s

tracking:
  backend: "mlflow"
  uri: "http://localhost:5000"
  experiment: "translation_genai"
  db_path: "./translator.db"

artifacts:
  dir: "/tmp/mlflow_artifacts"

server:
  host: "0.0.0.0"
  port: 7860

security:
  rate_limit: 0
  burst: 10

log:
  level: "info"
  format: "text"
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	cfgPath string
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "translator",
		Short:         "Generative translator with run tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.envFile)
		},
	}

	root.PersistentFlags().StringVar(&opts.cfgPath, "config", "", "config file path (default ~/.translator/config.yaml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file to load (default .env if present)")

	root.AddCommand(newInitCmd())
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newTranslateCmd(opts))
	root.AddCommand(newLanguagesCmd())
	root.AddCommand(newRunsCmd(opts))

	return root
}

// loadEnvFile loads path, or ./.env when path is empty. Variables already set win.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ~/.translator directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			baseDir := filepath.Join(home, ".translator")
			if err := os.MkdirAll(baseDir, 0o755); err != nil {
				return err
			}

			cfgFile := filepath.Join(baseDir, "config.yaml")
			if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgFile, []byte(defaultConfigContent), 0o600); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", cfgFile)
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", cfgFile)
			} else {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "please set API_KEY in the environment, a .env file or llm.api_key in", cfgFile)
			return nil
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the translation web UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := logger.New(cfg.Log.Level, cfg.Log.Format)
			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := server.New(cfg, a.handler, log.WithComponent("server").Logger)
			if err != nil {
				return err
			}
			if a.store != nil {
				srv.WithRuns(a.store, a.experimentID)
			}

			log.Info("server listening", "addr", cfg.Address(), "model", cfg.LLM.Model)
			return srv.ListenAndServe(ctx, cfg.Address())
		},
	}
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "server host")
	cmd.Flags().IntVar(&port, "port", 7860, "server port")
	return cmd
}

func newTranslateCmd(opts *rootOptions) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "translate [text]",
		Short: "Translate text once and log the run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			out := a.handler.Handle(cmd.Context(), strings.Join(args, " "), lang)
			fmt.Fprintln(cmd.OutOrStdout(), out.Text)
			if out.Err != nil {
				return fmt.Errorf("translate: %w", out.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", translate.DefaultDisplay, "target language as shown in the UI")
	return cmd
}

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported target languages",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DISPLAY\tPROMPT NAME")
			for _, l := range translate.Languages() {
				fmt.Fprintf(w, "%s\t%s\n", l.Display, l.Canonical)
			}
			return w.Flush()
		},
	}
}

func newRunsCmd(opts *rootOptions) *cobra.Command {
	var limit int
	var all bool
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs in the local SQLite backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(st store.Store, cfg *config.Config) error {
				expID := ""
				if !all {
					id, err := st.EnsureExperiment(cmd.Context(), cfg.Tracking.Experiment)
					if err != nil {
						return err
					}
					expID = id
				}
				runs, err := st.ListRuns(cmd.Context(), expID, limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSTARTED\tLATENCY_MS")
				for i := range runs {
					latency := "-"
					if v, ok := runs[i].Metric("latency_ms"); ok {
						latency = fmt.Sprintf("%.2f", v)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						runs[i].ID, runs[i].Name, runs[i].Status,
						runs[i].StartTime.Local().Format(time.DateTime), latency)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().BoolVar(&all, "all", false, "include runs of every experiment")

	cmd.AddCommand(newRunsShowCmd(opts))
	cmd.AddCommand(newRunsDeleteCmd(opts))
	return cmd
}

func newRunsShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a run with its params, metrics and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(st store.Store, _ *config.Config) error {
				run, err := st.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s  %s  %s\n", run.ID, run.Name, run.Status)
				for _, p := range run.Params {
					fmt.Fprintf(out, "  param  %s = %s\n", p.Key, p.Value)
				}
				for _, m := range run.Metrics {
					fmt.Fprintf(out, "  metric %s = %g\n", m.Key, m.Value)
				}
				for _, name := range run.Artifacts {
					data, err := st.GetArtifact(cmd.Context(), run.ID, name)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "\n--- %s ---\n%s\n", name, data)
				}
				return nil
			})
		},
	}
}

func newRunsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [run-id]",
		Short: "Delete a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(st store.Store, _ *config.Config) error {
				if err := st.DeleteRun(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
				return nil
			})
		},
	}
}

func withStore(opts *rootOptions, fn func(store.Store, *config.Config) error) error {
	cfg, err := config.Load(opts.cfgPath)
	if err != nil {
		return err
	}
	if cfg.Tracking.Backend != config.BackendSQLite {
		return fmt.Errorf("runs are kept by the MLflow server at %s; set tracking.backend to sqlite to browse them here", cfg.Tracking.URI)
	}
	st, err := store.NewSQLiteStore(cfg.Tracking.DBPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.Tracking.DBPath, err)
	}
	defer st.Close()
	return fn(st, cfg)
}
