package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"another-i/importer"
	"another-i/llm"
	"another-i/orchestrator"
	"another-i/server"
	"another-i/utils"
)

var version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "another-i",
		Short: "A journaling companion that turns conversations into thought documents",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env from the working directory if there is one
			_ = godotenv.Load()
			return nil
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	importCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "Import a ChatGPT conversations.json export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(args[0])
		},
	}

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export one conversation or everything to Markdown or JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			id, _ := cmd.Flags().GetString("id")
			out, _ := cmd.Flags().GetString("out")
			return runExport(format, id, out)
		},
	}

	vacuumCmd = &cobra.Command{
		Use:   "vacuum",
		Short: "Compact the database and print storage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVacuum()
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Another I v%s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to the configuration file")
	rootCmd.PersistentFlags().String("addr", "", "address the server listens on")
	rootCmd.PersistentFlags().String("db", "", "path to the SQLite database")
	rootCmd.PersistentFlags().String("log", "", "path to the log file")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	for _, key := range []string{"config", "addr", "db", "log", "debug"} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key)); err != nil {
			panic(err)
		}
	}

	exportCmd.Flags().String("format", "markdown", `export format, "markdown" or "json"`)
	exportCmd.Flags().String("id", "", "export only this conversation")
	exportCmd.Flags().String("out", "", "output file (default: a generated name in the export directory)")

	viper.SetEnvPrefix("anotheri")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, importCmd, exportCmd, vacuumCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe() error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	service := llm.NewService(llm.NewFactory(llm.DefaultsFromConfig(a.config)), a.logger)
	metrics := server.NewMetrics()
	orch := orchestrator.New(a.state, service, a.logger, metrics.Hooks())

	srv := server.New(server.Deps{
		State:        a.state,
		Orchestrator: orch,
		AI:           service,
		Storage:      a.db,
		Metrics:      metrics,
		Logger:       a.logger,
		Config:       a.config.Server,
	})

	errCh := make(chan error, 1)
	utils.SafeGoWithError(a.logger, "http server", func() error {
		return srv.Start(a.config.Server.Addr)
	}, func(err error) { errCh <- err })
	fmt.Printf("Another I v%s running at http://%s\n", version, a.config.Server.Addr)

	// Trigger graceful shutdown on SIGINT or SIGTERM
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, terminationSignals...)

	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		a.logger.Info("Received %s, shutting down", s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Warn("Shutdown did not finish cleanly: %v", err)
	}
	a.logger.Info("Application stopped")
	return nil
}

func runImport(path string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read export: %w", err)
	}
	result, err := importer.ParseChatGPT(data, time.Now())
	if err != nil {
		return err
	}

	added := a.state.Import(result.Conversations)
	fmt.Printf("Imported %d conversations, skipped %d\n", added, result.SkippedCount+result.ImportedCount-added)
	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "  %s\n", e)
	}
	return nil
}

func runExport(formatName, id, out string) error {
	format, err := utils.ParseExportFormat(formatName)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	now := time.Now()
	var (
		data  []byte
		title = "another-i-export"
	)
	if id != "" {
		conv, ok := a.state.Conversation(id)
		if !ok {
			return fmt.Errorf("conversation %q not found", id)
		}
		title = conv.Title
		data, err = utils.ExportConversation(conv, format, now)
	} else {
		data, err = utils.ExportAll(a.state.Folders(), format, now)
	}
	if err != nil {
		return err
	}

	if out == "" {
		dir, err := utils.GetDefaultExportPath()
		if err != nil {
			return fmt.Errorf("failed to resolve export directory: %w", err)
		}
		out = filepath.Join(dir, utils.GenerateExportFilename(title, format, now))
	}
	if err := utils.WriteExport(out, data); err != nil {
		return err
	}
	fmt.Printf("Exported to %s\n", out)
	return nil
}

func runVacuum() error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	before, err := a.db.GetStats()
	if err != nil {
		return err
	}
	if err := a.db.Vacuum(); err != nil {
		return err
	}
	after, err := a.db.GetStats()
	if err != nil {
		return err
	}

	records, err := a.db.ListSettings()
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Printf("  %-40s %8d bytes  %s\n", r.Key, len(r.Value), r.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Printf("%d records, database %d -> %d bytes\n", after.KeyCount, before.DBSizeBytes, after.DBSizeBytes)
	return nil
}
