package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brianjohn-park/livetranslate/auth"
	"github.com/brianjohn-park/livetranslate/db"
	"github.com/brianjohn-park/livetranslate/relay"
	"github.com/brianjohn-park/livetranslate/setup"
	"github.com/brianjohn-park/livetranslate/speechmatics"
	"github.com/brianjohn-park/livetranslate/translate"
	"github.com/brianjohn-park/livetranslate/web"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listSessionsCmd)
	rootCmd.AddCommand(setupCmd)

	rootCmd.PersistentFlags().Int("port", 8080, "HTTP server port")
	rootCmd.PersistentFlags().
		String("database-url", "", "Postgres connection URL")
	rootCmd.PersistentFlags().
		String("speechmatics-api-key", "", "Speechmatics API key")
	rootCmd.PersistentFlags().String("gemini-api-key", "", "Gemini API key")
	rootCmd.PersistentFlags().
		String("jwt-secret", "", "Secret for signing bearer tokens")

	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag(
		"database_url",
		rootCmd.PersistentFlags().Lookup("database-url"),
	)
	viper.BindPFlag(
		"speechmatics_api_key",
		rootCmd.PersistentFlags().Lookup("speechmatics-api-key"),
	)
	viper.BindPFlag(
		"gemini_api_key",
		rootCmd.PersistentFlags().Lookup("gemini-api-key"),
	)
	viper.BindPFlag(
		"jwt_secret",
		rootCmd.PersistentFlags().Lookup("jwt-secret"),
	)
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetDefault("token_ttl", "24h")
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		fmt.Printf("Error reading config file: %s\n", err)
	}

	logger = log.New(os.Stdout)
}

var rootCmd = &cobra.Command{
	Use:   "livetranslate",
	Short: "Live conversation transcription and translation backend",
	Long:  `livetranslate serves the REST API and the WebSocket relay that bridges client audio to the transcription provider and returns translated utterances.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	Run:   runServe,
}

var listSessionsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored sessions in a table",
	Run:   runListSessions,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive first-run configuration",
	Run: func(cmd *cobra.Command, args []string) {
		setup.RunSetup()
	},
}

func runServe(cmd *cobra.Command, args []string) {
	mainLogger, hearLogger, sqlLogger := createLoggers()

	ctx := context.Background()

	pool, store, err := db.OpenDatabase(ctx)
	if err != nil {
		mainLogger.Fatal("initialize database", "error", err.Error())
	}
	defer pool.Close()
	sqlLogger.Info("connected", "url", viper.GetString("database_url"))

	jwtSecret := viper.GetString("jwt_secret")
	if jwtSecret == "" {
		mainLogger.Fatal("missing JWT_SECRET or --jwt-secret=")
	}
	speechmaticsKey := viper.GetString("speechmatics_api_key")
	if speechmaticsKey == "" {
		mainLogger.Fatal(
			"missing SPEECHMATICS_API_KEY or --speechmatics-api-key=",
		)
	}
	geminiKey := viper.GetString("gemini_api_key")
	if geminiKey == "" {
		mainLogger.Fatal("missing GEMINI_API_KEY or --gemini-api-key=")
	}

	authService := auth.NewService(
		jwtSecret,
		viper.GetDuration("token_ttl"),
	)

	translator, err := translate.NewGemini(ctx, geminiKey)
	if err != nil {
		mainLogger.Fatal("create translator", "error", err.Error())
	}
	defer translator.Close()

	recognizer := speechmatics.NewLiveTranscriber(speechmaticsKey, hearLogger)

	handler := web.NewHandler(store, authService, mainLogger)
	transcriptionRelay := relay.New(
		recognizer,
		translator,
		authService,
		hearLogger,
	)

	r := chi.NewRouter()
	handler.Routes(r)
	r.Handle("/ws", transcriptionRelay)

	port := viper.GetInt("port")
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}

	go func() {
		mainLogger.Info("serve", "url", fmt.Sprintf("http://localhost:%d", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			mainLogger.Fatal("http server", "error", err.Error())
		}
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	mainLogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		mainLogger.Error("shutdown", "error", err.Error())
	}
}

func runListSessions(cmd *cobra.Command, args []string) {
	mainLogger, _, _ := createLoggers()

	ctx := context.Background()

	pool, store, err := db.OpenDatabase(ctx)
	if err != nil {
		mainLogger.Fatal("initialize database", "error", err.Error())
	}
	defer pool.Close()

	sessions, err := store.GetAllSessionsWithDetails(ctx)
	if err != nil {
		mainLogger.Fatal("fetch sessions", "error", err.Error())
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Started At", "User", "Languages", "Duration", "Speakers", "Confidence", "Utterances"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for _, session := range sessions {
		table.Append([]string{
			session.ID.String(),
			session.StartedAt.Format("2006-01-02 15:04:05"),
			session.Email,
			fmt.Sprintf("%s→%s", session.SourceLang, session.TargetLang),
			fmt.Sprintf("%.1f s", session.DurationSeconds),
			fmt.Sprintf("%d", session.SpeakerCount),
			fmt.Sprintf("%.2f", session.AvgConfidence),
			fmt.Sprintf("%d", session.UtteranceCount),
		})
	}

	table.Render()
}

func createLoggers() (mainLogger, hearLogger, sqlLogger *log.Logger) {
	logLevel := log.DebugLevel

	logger.SetLevel(logLevel)
	logger.SetReportCaller(true)
	logger.SetCallerFormatter(
		func(file string, line int, funcName string) string {
			path, err := filepath.Rel(".", file)
			if err != nil {
				path = file
			}
			return fmt.Sprintf("%s:%d", path, line)
		},
	)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.MarginTop(1).
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))

	logger.SetStyles(styles)

	mainLogger = logger.With().WithPrefix("main")
	hearLogger = logger.With().WithPrefix("hear")
	sqlLogger = logger.With().WithPrefix("data")

	return
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
