package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/petasbytes/go-openrouter/chat"
	"github.com/petasbytes/go-openrouter/internal/config"
	"github.com/petasbytes/go-openrouter/internal/fsops"
	"github.com/petasbytes/go-openrouter/internal/metrics"
	"github.com/petasbytes/go-openrouter/internal/telemetry"
	"github.com/petasbytes/go-openrouter/memory"
	"github.com/petasbytes/go-openrouter/transport/anthropic"
	"github.com/petasbytes/go-openrouter/transport/openrouter"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

var (
	stderr io.Writer = os.Stderr
	exit             = os.Exit
)

// fatal reports a startup failure on stderr and exits.
func fatal(prefix string, err error) {
	fmt.Fprintf(stderr, "%s: %v\n", prefix, err)
	exit(1)
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	backend := flag.String("backend", "", "override backend: openrouter or anthropic")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	transcriptPath := flag.String("transcript", "conversation.json", "transcript file; empty disables persistence")
	root := flag.String("root", "", "sandbox root for file tools (default: working directory)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("config", err)
	}
	if *backend != "" {
		cfg.Backend = *backend
		if err := cfg.Validate(); err != nil {
			fatal("config", err)
		}
	}

	tr, err := newTransport(cfg)
	if err != nil {
		fatal("transport", err)
	}
	sandbox, err := fsops.NewSandbox(*root)
	if err != nil {
		fatal("sandbox", err)
	}

	m := metrics.New()
	if *metricsAddr != "" {
		srv := serveMetrics(*metricsAddr, m)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	// Load prior conversation if it exists
	var history []chat.Message
	if *transcriptPath != "" {
		history, err = memory.LoadConversation(*transcriptPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load persisted conversation: %v\n", err)
			history = nil
		}
	}

	s := &session{
		cfg:     cfg,
		runner:  chat.NewRunner(tr, m),
		tools:   append(fsops.Tools(sandbox), currentTimeTool(time.Now)),
		history: history,
	}

	// Set up graceful shutdown on Ctrl-C (SIGINT) / SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = telemetry.WithConversationID(ctx, "conv-"+uuid.NewString())
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigch)
	go func() {
		<-sigch
		fmt.Println("\nExiting...")
		cancel()
	}()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Printf("Chat with %s via %s (Ctrl-C to quit)\n", cfg.Model, cfg.Backend)

	// stdin reader goroutine -> lines into channel
	inputCh := make(chan string)
	go func() {
		for scanner.Scan() {
			inputCh <- scanner.Text()
		}
		close(inputCh)
	}()

outer:
	for {
		fmt.Print("\u001b[94mYou\u001b[0m: ")
		var (
			user string
			ok   bool
		)
		select {
		case <-ctx.Done():
			break outer
		case user, ok = <-inputCh:
			if !ok {
				break outer
			}
		}

		res, err := s.turn(ctx, user)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error (%s): %v\n", chat.ErrorKind(err), err)
			continue
		}
		printAnswer(res)

		if *transcriptPath != "" {
			if err := memory.SaveConversation(*transcriptPath, s.history); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to save conversation: %v\n", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: stdin read error: %v\n", err)
	}
}

func newTransport(cfg *config.Config) (chat.Transport, error) {
	if cfg.Backend == config.BackendAnthropic {
		// The SDK reads the key itself.
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			return nil, errors.New("missing ANTHROPIC_API_KEY; export it before running")
		}
		return anthropic.New(), nil
	}
	opts := []openrouter.Option{openrouter.WithAppInfo("https://github.com/petasbytes/go-openrouter", "go-openrouter")}
	if cfg.BaseURL != "" {
		opts = append(opts, openrouter.WithBaseURL(cfg.BaseURL))
	}
	c := openrouter.New(opts...)
	if c.APIKey == "" {
		return nil, fmt.Errorf("missing %s; export it before running", openrouter.APIKeyEnv)
	}
	return c, nil
}

func serveMetrics(addr string, m *metrics.Metrics) *http.Server {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Mount("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "warning: metrics server: %v\n", err)
		}
	}()
	return srv
}

func printAnswer(res *chat.Result) {
	label := "\u001b[93mAssistant\u001b[0m"
	if res.Refused {
		fmt.Printf("%s (refused): %s\n", label, res.Response.Refusal())
		return
	}
	fmt.Printf("%s: %s\n", label, formatAnswer(res.Response.Text()))
}

// formatAnswer pretty-prints JSON answers (structured output) and leaves
// prose untouched.
func formatAnswer(text string) string {
	if text == "" || !gjson.Valid(text) || !(gjson.Parse(text).IsObject() || gjson.Parse(text).IsArray()) {
		return text
	}
	return "\n" + string(pretty.Pretty([]byte(text)))
}
