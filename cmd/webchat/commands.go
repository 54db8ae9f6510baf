package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webchat/internal/browser"
	"webchat/internal/channel"

	"github.com/spf13/cobra"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive terminal chat",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := buildChat(ctx, cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	cli := channel.NewCLI(channel.CLIConfig{
		Label:    stack.profile.DisplayName(),
		Markdown: cfg.Display.Markdown,
		Logger:   logger,
	})
	return cli.Start(ctx, stack.chat)
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Open a visible browser to sign in to the chat site",
		Long:  "Opens a visible browser window on the configured site. Sign in, then press Enter; cookies are kept in the browser profile for later headless use.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			prof, err := resolveProfile(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return browser.Login(ctx, browserConfig(cfg), prof, func(ctx context.Context) error {
				fmt.Printf("Log in to %s in the browser window, then press Enter here.\n", prof.DisplayName())
				return waitForEnter(ctx)
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat session over HTTP",
		Long:  "Opens the chat page and starts an HTTP relay: GET /health, POST /ask (streams the answer), GET /metrics. Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			if cmd.Flags().Changed("host") {
				cfg.Relay.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Relay.Port = port
			}
			if cfg.Relay.AccessKey == "" {
				logger.Warn("relay has no access key; anyone who can reach it can use your session")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stack, err := buildChat(ctx, cfg)
			if err != nil {
				return err
			}
			defer stack.Close()

			relay := channel.NewRelay(channel.RelayConfig{
				Addr:          cfg.Relay.Addr(),
				AccessKey:     cfg.Relay.AccessKey,
				AnswerTimeout: cfg.Detect.Timeout() + 30*time.Second,
				Metrics:       stack.registry,
				Logger:        logger,
			})
			err = relay.Start(ctx, stack.chat)
			logger.Info("relay stopped")
			return err
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default relay.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default relay.port)")
	return cmd
}

func askCmd() *cobra.Command {
	var (
		url     string
		key     string
		label   string
		retries int
	)
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Chat through a remote webchat relay",
		Long:  "Connects to a relay started with 'webchat serve'. With a message argument it asks once; otherwise it starts a REPL.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			baseURL := cfg.Relay.BaseURL()
			if url != "" {
				baseURL = url
			}
			accessKey := cfg.Relay.AccessKey
			if key != "" {
				accessKey = key
			}
			if label == "" {
				if prof, err := resolveProfile(cfg); err == nil {
					label = prof.DisplayName()
				} else {
					label = "Assistant"
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := channel.NewRelayClient(channel.RelayClientConfig{
				BaseURL:     baseURL,
				AccessKey:   accessKey,
				Timeout:     cfg.Detect.Timeout() + 60*time.Second,
				BusyRetries: retries,
				Logger:      logger,
			})
			if err := client.Health(ctx); err != nil {
				return err
			}

			if len(args) == 1 {
				return client.AskLine(ctx, args[0], os.Stdout)
			}

			fmt.Printf("Connected to %s. Type 'quit' to exit.\n", baseURL)
			return client.RunREPL(ctx, label, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "relay base URL (default relay.url or relay host/port)")
	cmd.Flags().StringVar(&key, "key", "", "relay access key (default relay.accessKey)")
	cmd.Flags().StringVar(&label, "label", "", "name printed before answers")
	cmd.Flags().IntVar(&retries, "retries", 3, "resend a message this many times while the relay is busy")
	return cmd
}
