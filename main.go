package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"strategic-advisor/internal/advisor"
	"strategic-advisor/internal/chat"
	"strategic-advisor/internal/config"
	"strategic-advisor/internal/session"
	"strategic-advisor/internal/terminal"
	"strategic-advisor/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:   "strategic-advisor",
	Short: "Terminal client for the strategic advisor agent",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		if err := config.InitViper(viper.GetViper(), cmd.Root().PersistentFlags(), configFile); err != nil {
			return err
		}
		return initLogger()
	},
	RunE: runChat,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive advisor session",
	RunE:  runChat,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to config file (default ./config.yaml or ~/.strategic-advisor/config.yaml)")
	pf.String("log-level", "warn", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (json, text)")
	pf.String("log-file", "", "Log file (default: stderr)")
	pf.Bool("with-caller", false, "Log caller")
	pf.Bool("verbose", false, "Verbose output")
	config.AddFlags(pf)

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveMockCmd)
}

func initLogger() error {
	level := viper.GetString("log-level")
	if viper.GetBool("verbose") {
		level = "debug"
	}
	return config.InitLogger(config.LogConfig{
		Level:      level,
		Format:     viper.GetString("log-format"),
		File:       viper.GetString("log-file"),
		WithCaller: viper.GetBool("with-caller"),
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return err
	}

	display := ui.NewDisplay(cfg.ShowTraces)
	client := advisor.NewClient(cfg.RequestTimeout)

	store := session.NewStore(cfg.HistoryPath, cfg.MaxHistorySize)
	if err := store.Load(); err != nil {
		display.PrintWarning(fmt.Sprintf("Failed to load history: %v", err))
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go handleShutdown(sigChan, display, cancel, os.Exit)

	// Health check is advisory; the mock endpoint may live elsewhere
	if cfg.HealthURL != "" && !cfg.Mock {
		if err := client.HealthCheck(ctx, cfg.HealthURL); err != nil {
			display.PrintWarning(fmt.Sprintf("Backend health check failed: %v", err))
			display.PrintInfo("Start the backend or use --mock with serve-mock.")
		}
	}

	controller, err := chat.NewController(chat.Options{
		Config:   cfg,
		Streamer: client,
		Saver:    store,
		Observer: display,
		Logger:   &log.Logger,
	})
	if err != nil {
		return err
	}

	if terminal.IsTerminal() {
		display.ClearScreen()
	}
	display.PrintWelcome(controller.Endpoint(), controller.Session().ThreadID())

	input := terminal.NewReader(os.Stdin)
	for {
		display.PrintPrompt()
		line, err := input.ReadLine()
		if err != nil {
			if err != io.EOF {
				display.PrintError(err)
			}
			break
		}

		command := terminal.ParseCommand(line)
		switch command.Kind {
		case terminal.CmdExit:
			display.PrintGoodbye()
			return nil
		case terminal.CmdClear:
			display.ClearScreen()
			display.PrintWelcome(controller.Endpoint(), controller.Session().ThreadID())
			continue
		case terminal.CmdHistory:
			displayHistory(controller.Session(), display)
			continue
		case terminal.CmdTraces:
			if display.ToggleTraces() {
				display.PrintInfo("Agent reasoning log expanded")
			} else {
				display.PrintInfo("Agent reasoning log collapsed")
			}
			continue
		case terminal.CmdMode:
			mode, err := config.ParseMode(command.Arg)
			if err != nil {
				display.PrintError(err)
				continue
			}
			controller.SetMode(mode)
			display.PrintInfo(fmt.Sprintf("Mode: %s (%s)", mode, controller.Endpoint()))
			continue
		case terminal.CmdMock:
			_, mock := controller.Mode()
			switch command.Arg {
			case "on":
				mock = true
			case "off":
				mock = false
			default:
				mock = !mock
			}
			controller.SetMock(mock)
			if mock {
				display.PrintInfo("Mock mode: " + controller.Endpoint())
			} else {
				display.PrintInfo("Live mode: " + controller.Endpoint())
			}
			continue
		case terminal.CmdReset:
			if err := controller.Reset(); err != nil {
				display.PrintError(err)
				continue
			}
			display.PrintSuccess("New session " + controller.Session().ThreadID())
			continue
		case terminal.CmdUnknown:
			display.PrintWarning(fmt.Sprintf("Unknown command /%s", command.Arg))
			continue
		}

		if line == "" {
			continue
		}

		if err := controller.Submit(ctx, line); err != nil {
			display.PrintError(err)
		}
	}

	display.PrintGoodbye()
	return nil
}

// handleShutdown ends the process on the first signal. A turn in flight is
// not aborted on its own; the root context goes down with the process.
func handleShutdown(sigChan <-chan os.Signal, display *ui.Display, cancel context.CancelFunc, exit func(int)) {
	<-sigChan
	display.PrintInfo("\nShutting down gracefully...")
	cancel()
	exit(0)
}

// displayHistory shows the current session's turns
func displayHistory(s *session.Session, display *ui.Display) {
	turns := s.Turns()
	if len(turns) == 0 {
		display.PrintInfo("No conversation history yet")
		return
	}

	display.PrintSeparator()
	display.PrintInfo("Session " + s.ThreadID())
	display.PrintSeparator()
	display.PrintTurns(turns)
	display.PrintSeparator()
}
