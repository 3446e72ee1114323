package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/templatedoctor/validation-orchestrator/internal/analyzer"
	"github.com/templatedoctor/validation-orchestrator/internal/batchscan"
	"github.com/templatedoctor/validation-orchestrator/internal/config"
	"github.com/templatedoctor/validation-orchestrator/internal/correlate"
	"github.com/templatedoctor/validation-orchestrator/internal/githubhost"
	"github.com/templatedoctor/validation-orchestrator/internal/orchestrator"
	"github.com/templatedoctor/validation-orchestrator/internal/polldriver"
	"github.com/templatedoctor/validation-orchestrator/internal/ruleset"
	"github.com/templatedoctor/validation-orchestrator/internal/schedule"
	"github.com/templatedoctor/validation-orchestrator/tui"
	"github.com/templatedoctor/validation-orchestrator/web/api"
)

var (
	serveHost string
	servePort int

	validateRepo     string
	validateRuleset  string
	validateCallback string
	validateInterval int
	validateAttempts int

	watchInterval int
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator HTTP service",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&serveHost, "host", "", "bind address (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Dispatch a validation run and poll it to completion",
		RunE:  runValidate,
	}
	validateCmd.Flags().StringVar(&validateRepo, "repo", "", "target repository URL (required)")
	validateCmd.Flags().StringVar(&validateRuleset, "ruleset", "", "named rule set selecting the validators")
	validateCmd.Flags().StringVar(&validateCallback, "callback", "", "callback URL passed to the workflow")
	validateCmd.Flags().IntVar(&validateInterval, "interval-ms", 0, "poll interval (overrides config)")
	validateCmd.Flags().IntVar(&validateAttempts, "max-attempts", 0, "poll attempt budget (overrides config)")
	validateCmd.MarkFlagRequired("repo")
	rootCmd.AddCommand(validateCmd)

	watchCmd := &cobra.Command{
		Use:   "watch TOKEN",
		Short: "Watch a validation run in a live dashboard",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
	watchCmd.Flags().IntVar(&watchInterval, "interval-ms", 0, "poll interval (overrides config)")
	rootCmd.AddCommand(watchCmd)

	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "List configured rule sets",
		RunE:  runRules,
	}
	rootCmd.AddCommand(rulesCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func newLogger() pslog.Logger {
	return pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
}

// buildOrchestrator wires the host adapter, correlator and
// orchestrator from one config.
func buildOrchestrator(cfg *config.Config, logger pslog.Logger) *orchestrator.Orchestrator {
	host := githubhost.New(githubhost.Config{
		Token:   cfg.GitHub.Token,
		Repo:    cfg.GitHub.WorkflowRepo,
		BaseURL: cfg.GitHub.APIBase,
	})

	narrow := githubhost.RunScope{
		WorkflowFile: cfg.GitHub.WorkflowFile,
		Branch:       cfg.GitHub.Branch,
	}
	broad := githubhost.RunScope{Branch: cfg.GitHub.Branch}
	resolver := correlate.New(host, narrow, broad, 5*time.Minute)

	return orchestrator.New(host, resolver, orchestrator.Config{
		WorkflowFile: cfg.GitHub.WorkflowFile,
		Ref:          cfg.GitHub.Branch,
		TokenPresent: cfg.GitHub.Token != "",
	}, logger)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger()
	ctx := pslog.ContextWithLogger(context.Background(), logger)

	host := cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	orch := buildOrchestrator(cfg, logger)

	store := batchscan.NewMemoryStore()
	coord := batchscan.New(store, &analyzer.Simulated{Delay: cfg.Batch.ScanDelay()}, cfg.Batch.Concurrency, logger)

	server := api.NewServer(orch, coord, addr, logger)
	coord.SetOnUpdate(func(u batchscan.ItemUpdate) {
		server.Broadcast(api.SSEEvent{Type: "batch_update", Data: u})
	})

	if sets, err := ruleset.LoadDir(cfg.Rules.Dir); err != nil {
		logger.Warn("rule sets not loaded", "dir", cfg.Rules.Dir, "err", err)
	} else {
		logger.Info("rule sets loaded", "dir", cfg.Rules.Dir, "count", len(sets))
	}

	scheduler, err := schedule.NewScheduler(cfg.Scans, logger)
	if err != nil {
		return fmt.Errorf("scheduled scans: %w", err)
	}
	go scheduler.Start(ctx, func(sc schedule.ScanConfig) {
		if _, err := coord.Start(sc.Repos, sc.Mode); err != nil {
			logger.Error("scheduled scan rejected", "scan", sc.Name, "err", err)
		}
	})

	// Hot-reload scan definitions when the config file changes.
	if configPath != "" {
		watcher, err := schedule.WatchConfig(configPath, func() {
			fresh, err := config.Load(configPath)
			if err != nil {
				logger.Warn("config reload failed", "err", err)
				return
			}
			if err := scheduler.Reload(fresh.Scans); err != nil {
				logger.Warn("scan definitions rejected", "err", err)
				return
			}
			logger.Info("scan definitions reloaded", "scans", len(fresh.Scans))
		})
		if err != nil {
			logger.Warn("config watcher unavailable", "err", err)
		} else {
			watcher.Start(ctx)
			defer watcher.Stop()
		}
	}

	sweeper := cron.New()
	sweeper.AddFunc("@hourly", func() {
		if n := coord.Sweep(cfg.Batch.SweepAfter()); n > 0 {
			logger.Info("batches evicted", "count", n)
		}
	})
	sweeper.Start()
	defer sweeper.Stop()

	return server.Start()
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger()
	ctx := pslog.ContextWithLogger(context.Background(), logger)

	var validators []string
	if validateRuleset != "" {
		sets, err := ruleset.LoadDir(cfg.Rules.Dir)
		if err != nil {
			return fmt.Errorf("load rule sets: %w", err)
		}
		set, ok := sets[validateRuleset]
		if !ok {
			return fmt.Errorf("rule set %q not found in %s", validateRuleset, cfg.Rules.Dir)
		}
		validators = set.Validators
	}

	orch := buildOrchestrator(cfg, logger)

	result, err := orch.Dispatch(ctx, orchestrator.DispatchRequest{
		TargetRepoURL: validateRepo,
		CallbackURL:   validateCallback,
		Validators:    validators,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Dispatched validation run: %s\n", result.RunToken)

	pollCfg := polldriver.Config{
		Interval:    cfg.Poll.Interval(),
		MaxAttempts: cfg.Poll.MaxAttempts,
	}
	if validateInterval > 0 {
		pollCfg.Interval = time.Duration(validateInterval) * time.Millisecond
	}
	if validateAttempts > 0 {
		pollCfg.MaxAttempts = validateAttempts
	}

	var remoteID int64
	status := func(ctx context.Context) (polldriver.Report, error) {
		rep, err := orch.Status(ctx, result.RunToken, remoteID)
		if err != nil {
			return polldriver.Report{}, err
		}
		if rep.RemoteRunID != 0 {
			remoteID = rep.RemoteRunID
		}
		return polldriver.Report{
			Status:     string(rep.Status),
			Conclusion: string(rep.Conclusion),
			RunURL:     rep.RunURL,
		}, nil
	}
	cancel := func(ctx context.Context) error {
		_, err := orch.Cancel(ctx, result.RunToken, remoteID)
		return err
	}

	driver := polldriver.New(pollCfg, status, cancel)
	res, err := driver.Run(ctx)
	if err != nil {
		return err
	}

	switch res.Outcome {
	case polldriver.OutcomeTimedOut:
		fmt.Printf("Run not finished after %d polls. Resume with: td-orch watch %s\n",
			res.Attempts, result.RunToken)
		return nil
	case polldriver.OutcomeCancelled:
		fmt.Println("Run cancelled.")
		return nil
	}

	fmt.Printf("Run finished: %s", res.Last.Status)
	if res.Last.Conclusion != "" {
		fmt.Printf(" (%s)", res.Last.Conclusion)
	}
	fmt.Println()
	if res.Last.RunURL != "" {
		fmt.Printf("  %s\n", res.Last.RunURL)
	}
	if res.Last.Conclusion != "" && res.Last.Conclusion != "success" {
		return fmt.Errorf("validation concluded %s", res.Last.Conclusion)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := pslog.NewWithOptions(os.Stderr, pslog.Options{Mode: pslog.ModeStructured, NoColor: true})
	orch := buildOrchestrator(cfg, logger)
	token := args[0]

	interval := cfg.Poll.Interval()
	if watchInterval > 0 {
		interval = time.Duration(watchInterval) * time.Millisecond
	}

	var remoteID int64
	model := tui.NewModel(tui.ModelConfig{
		Token:    token,
		Interval: interval,
		Fetch: func(ctx context.Context) (*tui.RunView, error) {
			rep, err := orch.Status(ctx, token, remoteID)
			if err != nil {
				return nil, err
			}
			if rep.RemoteRunID != 0 {
				remoteID = rep.RemoteRunID
			}
			return &tui.RunView{
				Token:       rep.RunToken,
				RemoteRunID: rep.RemoteRunID,
				Status:      rep.Status,
				Conclusion:  rep.Conclusion,
				URL:         rep.RunURL,
				StartedAt:   rep.StartedAt,
				UpdatedAt:   rep.UpdatedAt,
			}, nil
		},
		Cancel: func(ctx context.Context) error {
			_, err := orch.Cancel(ctx, token, remoteID)
			return err
		},
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func runRules(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sets, err := ruleset.LoadDir(cfg.Rules.Dir)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		fmt.Printf("No rule sets in %s\n", cfg.Rules.Dir)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVALIDATORS\tDESCRIPTION")
	for name, set := range sets {
		fmt.Fprintf(w, "%s\t%d\t%s\n", name, len(set.Validators), set.Description)
	}
	return w.Flush()
}
