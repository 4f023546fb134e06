package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/hanpama/graphstore/internal/artifact"
	"github.com/hanpama/graphstore/internal/client"
	"github.com/hanpama/graphstore/internal/config"
	"github.com/hanpama/graphstore/internal/eventbus"
	"github.com/hanpama/graphstore/internal/grpctp"
	"github.com/hanpama/graphstore/internal/httptp"
	"github.com/hanpama/graphstore/internal/otel"
	"github.com/hanpama/graphstore/internal/persist"
	"github.com/hanpama/graphstore/internal/pipeline"
	"github.com/hanpama/graphstore/internal/plugins"
	"github.com/hanpama/graphstore/internal/wstp"
)

const rootUsage = `graphstore: normalized-cache GraphQL client

USAGE:
  graphstore <command> [flags]

COMMANDS:
  send             Execute a compiled document artifact and print the result
  check            Validate compiled document artifacts
  help             Show help for any command
`

const sendUsage = `send FLAGS:
  -config <file>           YAML configuration file (default: built-in defaults)
  -variables <json>        Variables object, e.g. '{"id":"1"}'
  -policy <name>           Cache policy override for queries
  -header <Name=value>     Extra request header. Repeatable
  -watch                   Keep printing results until interrupted
  -timeout <duration>      Overall timeout when not watching (default: 30s)
ARGS:
  <artifact.json>          Compiled document artifact
`

const checkUsage = `check ARGS:
  <artifact.json>...       Artifacts to validate (exits non-zero on errors)
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("graphstore", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "send":
		return cmdSend(cmdArgs, stdout, stderr)
	case "check":
		return cmdCheck(cmdArgs, stdout, stderr)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "send":
		fmt.Fprint(stdout, sendUsage)
	case "check":
		fmt.Fprint(stdout, checkUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type headerFlag map[string]string

func (h headerFlag) String() string { return "" }

func (h headerFlag) Set(v string) error {
	name, value, ok := strings.Cut(v, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("invalid header %q", v)
	}
	h[name] = strings.TrimSpace(value)
	return nil
}

func cmdSend(args []string, stdout, stderr io.Writer) error {
	configPath := ""
	variables := ""
	policy := ""
	watch := false
	timeout := 30 * time.Second
	headers := headerFlag{}

	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&configPath, "config", configPath, "YAML configuration file")
	fs.StringVar(&variables, "variables", variables, "Variables object")
	fs.StringVar(&policy, "policy", policy, "Cache policy override")
	fs.Var(headers, "header", "Extra request header")
	fs.BoolVar(&watch, "watch", watch, "Keep printing results until interrupted")
	fs.DurationVar(&timeout, "timeout", timeout, "Overall timeout")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, sendUsage)
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprint(stderr, sendUsage)
		return fmt.Errorf("expected exactly one artifact")
	}

	a, err := artifact.Load(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("load artifact: %w", err)
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%s: %w", fs.Arg(0), err)
	}
	var vars map[string]any
	if variables != "" {
		if err := json.Unmarshal([]byte(variables), &vars); err != nil {
			return fmt.Errorf("parse -variables: %w", err)
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	app, err := setup(cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if !watch && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// The observer is released by the client on close, after the cache is saved.
	obs, err := app.client.Observe(a)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	results := make(chan pipeline.Result, 16)
	if watch {
		unsubscribe := obs.Subscribe(func(r pipeline.Result) {
			select {
			case results <- r:
			default:
				logger.Warn("dropping result, output is behind", "document", a.Name)
			}
		})
		defer unsubscribe()
	}

	var session map[string]any
	if len(headers) > 0 {
		session = map[string]any{plugins.SessionKeyHeaders: map[string]string(headers)}
	}
	res, err := obs.Send(ctx, client.SendOptions{
		Variables: vars,
		Policy:    artifact.CachePolicy(policy),
		Session:   session,
	})
	if err != nil {
		return err
	}
	if !watch {
		return enc.Encode(res)
	}
	for {
		select {
		case r := <-results:
			if err := enc.Encode(r); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func cmdCheck(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, checkUsage)
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprint(stderr, checkUsage)
		return fmt.Errorf("no artifacts given")
	}
	var errs []error
	for _, path := range fs.Args() {
		a, err := artifact.Load(path)
		if err == nil {
			err = a.Validate()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		fmt.Fprintf(stdout, "ok  %s  %s %s\n", path, a.Kind, a.Name)
	}
	return errors.Join(errs...)
}

// app owns everything built from a Config.
type app struct {
	client  *client.Client
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func setup(cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	bus := eventbus.New()
	tel, err := otel.Setup(otel.Config{
		Endpoint:   cfg.OTel.Endpoint,
		Service:    cfg.OTel.Service,
		Prometheus: cfg.OTel.MetricsAddr != "",
	}, bus)
	if err != nil {
		return nil, fmt.Errorf("otel setup: %w", err)
	}
	a.closers = append(a.closers, func() { _ = tel.Shutdown(context.Background()) })
	if tel.Metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", tel.Metrics)
		srv := &http.Server{Addr: cfg.OTel.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		a.closers = append(a.closers, func() { _ = srv.Close() })
	}

	opts := []client.Option{
		client.WithLogger(logger),
		client.WithBus(bus),
		client.WithKeyFields(cfg.Cache.KeyFields),
		client.WithGCDelay(cfg.Cache.GCDelay),
	}

	switch cfg.Transport.Kind {
	case config.TransportGRPC:
		service := cfg.Transport.Service
		if service == "" {
			service = grpctp.DefaultService
		}
		tp := grpctp.New(
			grpctp.WithProvider(grpctp.NewStaticEndpoints(map[string][]string{service: {cfg.Transport.Endpoint}})),
			grpctp.WithService(service),
			grpctp.WithMaxConnsPerEndpoint(cfg.Transport.MaxConns),
			grpctp.WithRPCTimeout(cfg.Transport.Timeout),
			grpctp.WithBus(bus),
		)
		a.closers = append(a.closers, func() { _ = tp.Close() })
		opts = append(opts, client.WithRequestHandler(withHeaders(tp, cfg.Transport.Headers)))
	default:
		opts = append(opts,
			client.WithFetch(&http.Client{Timeout: cfg.Transport.Timeout}),
			client.WithRequestHandler(httptp.New(
				httptp.WithEndpoint(cfg.Transport.Endpoint),
				httptp.WithHeaders(cfg.Transport.Headers),
				httptp.WithPersistedOnly(cfg.Transport.Persisted),
				httptp.WithBus(bus),
			)),
		)
	}

	if cfg.Subscriptions.URL != "" {
		opts = append(opts, client.WithSubscriptionClient(wstp.New(wstp.Options{
			URL:    cfg.Subscriptions.URL,
			Header: headerOf(cfg.Transport.Headers),
			Logger: logger,
			Bus:    bus,
		})))
	}
	if cfg.Throttle.RPS > 0 {
		opts = append(opts, client.WithPlugins(plugins.Throttle(rate.NewLimiter(rate.Limit(cfg.Throttle.RPS), cfg.Throttle.Burst))))
	}

	c, err := client.New(opts...)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, c.Close)

	if cfg.Cache.Persist != "" {
		store, err := persist.Open(persist.Config{Path: cfg.Cache.Persist, Logger: logger})
		if err != nil {
			return nil, err
		}
		if err := store.Restore(c.Cache()); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("restore cache: %w", err)
		}
		// Runs before c.Close so pending observers still hold their data.
		a.closers = append(a.closers, func() {
			if err := store.SaveCache(c.Cache()); err != nil {
				logger.Error("save cache failed", "error", err)
			}
			_ = store.Close()
		})
	}
	a.client = c
	return a, nil
}

func headerOf(m map[string]string) http.Header {
	h := http.Header{}
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}

// withHeaders adds static headers to the session of every gRPC request.
func withHeaders(next plugins.RequestHandler, headers map[string]string) plugins.RequestHandler {
	if len(headers) == 0 {
		return next
	}
	return plugins.RequestHandlerFunc(func(ctx context.Context, args plugins.RequestArgs) (plugins.Payload, error) {
		merged := map[string]string{}
		for k, v := range headers {
			merged[k] = v
		}
		for k, v := range plugins.SessionHeaders(args.Session) {
			merged[k] = v
		}
		session := map[string]any{}
		for k, v := range args.Session {
			session[k] = v
		}
		session[plugins.SessionKeyHeaders] = merged
		args.Session = session
		return next.Request(ctx, args)
	})
}
