package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/andybasham/aiagent/pkg/config"
	"github.com/andybasham/aiagent/pkg/deploy"
	"github.com/andybasham/aiagent/pkg/events"
	"github.com/andybasham/aiagent/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagAgentType string
	flagYes       bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aideploy <config-file>",
	Short: "aideploy - declarative file and database deployment agent",
	Long: `aideploy synchronizes a project tree from a source location to a
destination location and provisions the destination's MySQL schema in the
same run, driven by a single JSON configuration.

Incremental runs trust a persistent cache kept beside the configuration
file and skip the destination listing entirely; delete the cache file to
force a full comparison.`,
	Version: Version,
	Args:    cobra.ExactArgs(1),
	RunE:    runDeploy,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"aideploy version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().StringVar(&flagAgentType, "agent-type", config.AgentName, "Agent type to run (only ai-deploy is supported)")
	rootCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "Answer yes to all confirmation prompts")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOut,
	})
}

func runDeploy(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	if flagAgentType != config.AgentName {
		return fmt.Errorf("unknown agent type %q (only %q is supported)", flagAgentType, config.AgentName)
	}

	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	if cfg.Options.Verbose {
		go printEvents(broker.Subscribe())
	}

	deployer := deploy.New(cfg, log.WithComponent("deploy"),
		deploy.WithBroker(broker),
		deploy.WithConfirm(confirm),
	)

	summary, err := deployer.Run(ctx)
	if err != nil {
		log.Logger.Error().Err(err).Msg("Deployment failed")
		return err
	}

	fmt.Printf("\n%s: %d created, %d updated, %d deleted, %d skipped, %d scripts, %d seed inserts (%s)\n",
		summary.RunID,
		summary.FilesCreated, summary.FilesUpdated, summary.FilesDeleted, summary.FilesSkipped,
		summary.ScriptsExecuted, summary.SeedInserts,
		summary.Duration.Round(time.Millisecond),
	)
	return nil
}

// confirm asks the operator to acknowledge a destructive step.
func confirm(prompt string) bool {
	if flagYes {
		return true
	}
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func printEvents(sub events.Subscriber) {
	for event := range sub {
		switch event.Type {
		case events.EventFileCreated, events.EventFileUpdated, events.EventFileDeleted:
			fmt.Printf("  %-14s %s\n", event.Type, event.Path)
		case events.EventFileFailed:
			fmt.Printf("  %-14s %s: %s\n", event.Type, event.Path, event.Message)
		case events.EventScriptExecuted, events.EventSeedInserted, events.EventMappingApplied:
			fmt.Printf("  %-14s %s\n", event.Type, event.Path)
		}
	}
}
