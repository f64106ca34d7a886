package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanpama/splgraph/internal/config"
	"github.com/hanpama/splgraph/internal/eventbus"
	"github.com/hanpama/splgraph/internal/executor"
	"github.com/hanpama/splgraph/internal/filter"
	"github.com/hanpama/splgraph/internal/fixture"
	"github.com/hanpama/splgraph/internal/introspection"
	"github.com/hanpama/splgraph/internal/language"
	"github.com/hanpama/splgraph/internal/logging"
	"github.com/hanpama/splgraph/internal/metrics"
	"github.com/hanpama/splgraph/internal/otel"
	"github.com/hanpama/splgraph/internal/schema"
	"github.com/hanpama/splgraph/internal/server"
	"github.com/hanpama/splgraph/internal/spl"
)

const rootUsage = `splgraph — GraphQL server with @SPL result filtering

USAGE:
  splgraph <command> [flags]

COMMANDS:
  serve            Run the HTTP/WebSocket GraphQL server backed by a fixture
  print-schema     Print the merged SDL, including the @SPL declaration
  apply            Apply @SPL directives of a query to a stored response
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -config <file>                 YAML configuration file; flags override it
  -schema <file>                 GraphQL SDL file. Repeatable (required)
  -data <file>                   JSON or YAML fixture document (required)
  -graphql.introspection <bool>  Enable GraphQL introspection (default: true)
  -server.addr <addr>            HTTP listen address (default: :8080)
  -server.path <path>            GraphQL endpoint path (default: /graphql)
  -server.pretty                 Pretty-print JSON responses
  -server.timeout <duration>     Per-request timeout, e.g. 10s (default: 10s)
  -server.cors <origin>          Allowed CORS origin. Repeatable
  -server.max-body <bytes>       Maximum request body size (default: unlimited)
  -server.websocket <bool>       Serve graphql-transport-ws subscriptions (default: true)
  -log.level <level>             debug, info, warn or error (default: info)
  -log.format <format>           json or console (default: json)
  -otel.endpoint <addr>          OTLP collector endpoint
  -otel.service <name>           OpenTelemetry service name (default: splgraph)
  -metrics.path <path>           Prometheus endpoint path, empty to disable (default: /metrics)
  -filter.cost-limit <n>         CEL evaluation cost limit, 0 for none
  -filter.cache-size <n>         Compiled query cache size (default: 256)
  -fixture.interval <duration>   Delay between replayed subscription events
`

const printSchemaUsage = `print-schema FLAGS:
  -schema <file>  GraphQL SDL file. Repeatable (required)
  -out <file>     Write SDL to file (default: stdout)
`

const applyUsage = `apply FLAGS:
  -query <file>        GraphQL query document (required)
  -data <file>         JSON or YAML response; a {"data": ...} envelope is kept (required)
  -operation <name>    Operation to use when the document has several
  -variables <json>    Operation variables as a JSON object
  -log.level <level>   Level for diagnostics written to stderr (default: info)
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("splgraph", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return errors.New("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return cmdServe(ctx, cmdArgs, stderr)
	case "print-schema":
		return cmdPrintSchema(cmdArgs, stdout, stderr)
	case "apply":
		return cmdApply(cmdArgs, stdout, stderr)
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
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "print-schema":
		fmt.Fprint(stdout, printSchemaUsage)
	case "apply":
		fmt.Fprint(stdout, applyUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return strings.Join(*s, ",") }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// configPath finds -config ahead of the real parse so the file can supply
// the flag defaults.
func configPath(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func cmdServe(ctx context.Context, args []string, stderr io.Writer) error {
	cfg := config.Default()
	if path := configPath(args); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	introspect := true
	schemaFiles := stringListFlag(cfg.Schema)
	cors := stringListFlag(cfg.Server.CORS)
	timeout := cfg.Server.Timeout.Duration()
	interval := cfg.Fixture.EventInterval.Duration()

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.String("config", "", "YAML configuration file")
	fs.Var(&schemaFiles, "schema", "GraphQL SDL file")
	fs.StringVar(&cfg.Data, "data", cfg.Data, "Fixture document")
	fs.BoolVar(&introspect, "graphql.introspection", introspect, "Enable GraphQL introspection")
	fs.StringVar(&cfg.Server.Addr, "server.addr", cfg.Server.Addr, "HTTP listen address")
	fs.StringVar(&cfg.Server.Path, "server.path", cfg.Server.Path, "GraphQL endpoint path")
	fs.BoolVar(&cfg.Server.Pretty, "server.pretty", cfg.Server.Pretty, "Pretty-print JSON responses")
	fs.DurationVar(&timeout, "server.timeout", timeout, "Per-request timeout")
	fs.Var(&cors, "server.cors", "Allowed CORS origin")
	fs.Int64Var(&cfg.Server.MaxBodyBytes, "server.max-body", cfg.Server.MaxBodyBytes, "Maximum request body size")
	fs.BoolVar(&cfg.Server.WebSocket, "server.websocket", cfg.Server.WebSocket, "Serve graphql-transport-ws")
	fs.StringVar(&cfg.Log.Level, "log.level", cfg.Log.Level, "Log level")
	fs.StringVar(&cfg.Log.Format, "log.format", cfg.Log.Format, "Log format")
	fs.StringVar(&cfg.Otel.Endpoint, "otel.endpoint", cfg.Otel.Endpoint, "OTLP collector endpoint")
	fs.StringVar(&cfg.Otel.Service, "otel.service", cfg.Otel.Service, "OpenTelemetry service name")
	fs.StringVar(&cfg.Metrics.Path, "metrics.path", cfg.Metrics.Path, "Prometheus endpoint path")
	fs.Uint64Var(&cfg.Filter.CostLimit, "filter.cost-limit", cfg.Filter.CostLimit, "CEL cost limit")
	fs.IntVar(&cfg.Filter.CacheSize, "filter.cache-size", cfg.Filter.CacheSize, "Compiled query cache size")
	fs.DurationVar(&interval, "fixture.interval", interval, "Delay between replayed events")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, serveUsage)
		return err
	}
	cfg.Schema = schemaFiles
	cfg.Server.CORS = cors
	cfg.Server.Timeout = config.Duration(timeout)
	cfg.Fixture.EventInterval = config.Duration(interval)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.Schema) == 0 || cfg.Data == "" {
		fmt.Fprint(stderr, serveUsage)
		return errors.New("-schema and -data are required")
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	eventbus.Use(eventbus.New())
	defer logging.Subscribe(logger)()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	defer metrics.Subscribe(metrics.New(registry))()

	shutdownTracing, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	h, err := buildHandler(cfg, introspect)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, h)
	if cfg.Metrics.Path != "" {
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("GraphQL server listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("path", cfg.Server.Path),
		zap.Strings("schema", cfg.Schema),
		zap.String("data", cfg.Data))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// buildHandler assembles schema, runtime, filter engine and executor from cfg.
func buildHandler(cfg *config.Config, introspect bool) (*server.Handler, error) {
	sch, err := loadSchema(cfg.Schema)
	if err != nil {
		return nil, err
	}
	var runtime executor.Runtime
	runtime, err = fixture.Load(cfg.Data, fixture.WithEventInterval(cfg.Fixture.EventInterval.Duration()))
	if err != nil {
		return nil, fmt.Errorf("load fixture: %w", err)
	}
	if introspect {
		if runtime, sch, err = introspection.Wrap(runtime, sch); err != nil {
			return nil, fmt.Errorf("introspection: %w", err)
		}
	}
	engine, err := newEngine(cfg.Filter)
	if err != nil {
		return nil, err
	}
	exec := executor.NewExecutor(runtime, sch, executor.WithPlugins(spl.NewPlugin(engine)))

	opts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout.Duration()),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithWebSocket(cfg.Server.WebSocket),
		server.WithConnectionInitTimeout(cfg.Server.InitTimeout.Duration()),
	}
	if cfg.Server.Pretty {
		opts = append(opts, server.WithPretty())
	}
	if len(cfg.Server.CORS) > 0 {
		opts = append(opts, server.WithCORS(cfg.Server.CORS...))
	}
	return server.New(exec, opts...)
}

func newEngine(cfg config.FilterConfig) (*filter.CELEngine, error) {
	var opts []filter.CELOption
	if cfg.CostLimit > 0 {
		opts = append(opts, filter.WithCostLimit(cfg.CostLimit))
	}
	if cfg.CacheSize > 0 {
		opts = append(opts, filter.WithProgramCacheSize(cfg.CacheSize))
	}
	engine, err := filter.NewCELEngine(opts...)
	if err != nil {
		return nil, fmt.Errorf("filter engine: %w", err)
	}
	return engine, nil
}

// loadSchema merges the SDL files with the @SPL declaration.
func loadSchema(files []string) (*schema.Schema, error) {
	sources := []*language.Source{{Name: "spl.graphql", Input: spl.DirectiveTypeDefs}}
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		sources = append(sources, &language.Source{Name: f, Input: string(b)})
	}
	sch, err := schema.Load(sources...)
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	return sch, nil
}

func cmdPrintSchema(args []string, stdout, stderr io.Writer) error {
	var files stringListFlag
	outFile := ""
	fs := flag.NewFlagSet("print-schema", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.Var(&files, "schema", "GraphQL SDL file")
	fs.StringVar(&outFile, "out", outFile, "Write SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, printSchemaUsage)
		return err
	}
	if len(files) == 0 {
		fmt.Fprint(stderr, printSchemaUsage)
		return errors.New("-schema is required")
	}

	sch, err := loadSchema(files)
	if err != nil {
		return err
	}
	sdl := schema.Render(sch)
	if outFile == "" {
		_, err := io.WriteString(stdout, sdl)
		return err
	}
	return os.WriteFile(outFile, []byte(sdl), 0o644)
}

func cmdApply(args []string, stdout, stderr io.Writer) error {
	queryFile, dataFile, operation, variables := "", "", "", ""
	level := "info"
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&queryFile, "query", queryFile, "GraphQL query document")
	fs.StringVar(&dataFile, "data", dataFile, "Stored response")
	fs.StringVar(&operation, "operation", operation, "Operation name")
	fs.StringVar(&variables, "variables", variables, "Operation variables as JSON")
	fs.StringVar(&level, "log.level", level, "Diagnostics log level")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, applyUsage)
		return err
	}
	if queryFile == "" || dataFile == "" {
		fmt.Fprint(stderr, applyUsage)
		return errors.New("-query and -data are required")
	}

	src, err := os.ReadFile(queryFile)
	if err != nil {
		return fmt.Errorf("read query: %w", err)
	}
	doc, err := language.ParseQuery(string(src))
	if err != nil {
		return fmt.Errorf("parse query: %w", err)
	}
	raw, err := os.ReadFile(dataFile)
	if err != nil {
		return fmt.Errorf("read data: %w", err)
	}
	response, err := fixture.Decode(raw)
	if err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	vars := map[string]any{}
	if variables != "" {
		if err := json.Unmarshal([]byte(variables), &vars); err != nil {
			return fmt.Errorf("invalid -variables JSON: %w", err)
		}
	}

	logger, err := logging.NewWithSink(level, "console", zapcore.AddSync(stderr))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	eventbus.Use(eventbus.New())
	defer logging.Subscribe(logger)()

	engine, err := newEngine(config.Default().Filter)
	if err != nil {
		return err
	}

	envelope, ok := response.(map[string]any)
	if _, hasData := envelope["data"]; !ok || !hasData {
		envelope = map[string]any{"data": response}
	}
	params := executor.Params{Document: doc, OperationName: operation, Variables: vars}
	payload := &executor.ExecuteDonePayload{
		Context: context.Background(),
		Params:  params,
		Result:  &executor.ExecutionResult{Data: envelope["data"]},
	}
	if hooks := spl.NewPlugin(engine).OnExecute(params); hooks.OnExecuteDone != nil {
		hooks.OnExecuteDone(payload)
	}

	out := make(map[string]any, len(envelope))
	for k, v := range envelope {
		out[k] = v
	}
	out["data"] = payload.Result.Data

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
