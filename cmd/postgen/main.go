// Package main postgen 命令行客户端：向 PostAI 服务请求 LinkedIn 与 X 帖子
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"postai-api/internal/client"
	"postai-api/internal/domain/entity"
	"postai-api/pkg/logger"
)

type options struct {
	server      string
	html        bool
	showLog     bool
	maxAttempts int
	logLevel    string
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "postgen",
		Short:        "Generate LinkedIn and X posts from a prompt",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.InitWithWriter(os.Stderr, opts.logLevel, "text")
		},
	}

	defaultServer := os.Getenv("POSTAI_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:4000"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "PostAI server base URL")
	root.PersistentFlags().BoolVar(&opts.html, "html", false, "render posts as HTML")
	root.PersistentFlags().BoolVar(&opts.showLog, "log", false, "print the agent log")
	root.PersistentFlags().IntVar(&opts.maxAttempts, "max-attempts", client.DefaultMaxAttempts, "stream reconnect attempts before falling back to a batch request")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "client log level")

	root.AddCommand(
		modeCmd(out, opts, "generate", "Request both posts in one batch call", (*client.Session).Generate),
		modeCmd(out, opts, "stream", "Stream progress and finished posts", (*client.Session).Stream),
		modeCmd(out, opts, "tokens", "Stream posts token by token", (*client.Session).StreamTokens),
	)
	return root
}

type runFunc func(s *client.Session, ctx context.Context, prompt string) (client.View, error)

func modeCmd(out io.Writer, opts *options, use, short string, run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <prompt>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sessionOpts := []client.Option{client.WithMaxAttempts(opts.maxAttempts)}
			if opts.showLog {
				sessionOpts = append(sessionOpts, client.OnLog(func(e entity.LogEntry) {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s: %s\n", e.Timestamp, e.Step, e.Message)
				}))
			}
			session := client.NewSession(client.NewHTTPTransport(opts.server, &http.Client{}), sessionOpts...)

			view, err := run(session, ctx, prompt)
			if err != nil {
				return err
			}
			return printView(out, view, opts.html)
		},
	}
}

func printView(out io.Writer, view client.View, html bool) error {
	sections := []struct {
		title string
		text  string
	}{
		{"LinkedIn Post", view.LinkedIn},
		{"X / Twitter Post", view.X},
	}
	for _, s := range sections {
		text := s.text
		if text == "" {
			text = "No output yet"
		} else if html {
			rendered, err := client.RenderHTML(text)
			if err != nil {
				return err
			}
			text = strings.TrimSpace(rendered)
		}
		if _, err := fmt.Fprintf(out, "== %s ==\n%s\n\n", s.title, text); err != nil {
			return err
		}
	}
	return nil
}
