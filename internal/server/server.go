package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	eventbus "github.com/hanpama/splgraph/internal/eventbus"
	events "github.com/hanpama/splgraph/internal/events"
	executor "github.com/hanpama/splgraph/internal/executor"
	language "github.com/hanpama/splgraph/internal/language"
	reqid "github.com/hanpama/splgraph/internal/reqid"
)

// Handler serves a GraphQL endpoint over HTTP GET and POST. WebSocket
// upgrades on the same path speak graphql-transport-ws.
type Handler struct {
	exec      *executor.Executor
	validated *language.ValidatedSchema
	opt       Options
}

type Options struct {
	// Timeout applies when the request context has no deadline. 0 disables
	// it. WebSocket connections are not affected.
	Timeout time.Duration

	Pretty bool

	// MaxBodyBytes limits POST bodies. 0 means unlimited.
	MaxBodyBytes int64

	CORS CORSOptions

	WebSocket bool

	// ConnectionInitTimeout bounds the wait for connection_init on a new
	// WebSocket connection.
	ConnectionInitTimeout time.Duration
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithWebSocket(enable bool) Option   { return func(o *Options) { o.WebSocket = enable } }

func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

func WithConnectionInitTimeout(d time.Duration) Option {
	return func(o *Options) { o.ConnectionInitTimeout = d }
}

func defaultOptions() Options {
	return Options{
		Timeout:               10 * time.Second,
		WebSocket:             true,
		ConnectionInitTimeout: 10 * time.Second,
	}
}

// New wraps exec. Queries are validated against the executor schema when it
// was built from SDL; hand-built schemas only get parsed queries.
func New(exec *executor.Executor, opts ...Option) (*Handler, error) {
	if exec == nil {
		return nil, errors.New("server: nil executor")
	}
	h := &Handler{exec: exec, opt: defaultOptions()}
	for _, opt := range opts {
		opt(&h.opt)
	}
	if s := exec.Schema(); s != nil {
		h.validated = s.Validated
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.opt.WebSocket && websocket.IsWebSocketUpgrade(r) {
		h.serveWebSocket(w, r)
		return
	}

	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}
	ctx, _ = reqid.NewContext(ctx)

	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	h.opt.CORS.apply(w, r)
	switch r.Method {
	case http.MethodOptions:
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	case http.MethodGet, http.MethodPost:
	default:
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, failure("method not allowed"), h.opt.Pretty)
		return
	}

	reqs, batch, rerr := readRequests(r, h.opt.MaxBodyBytes)
	if rerr != nil {
		status = rerr.status
		writeJSON(w, status, failure(rerr.message), h.opt.Pretty)
		return
	}

	if !batch {
		writeJSON(w, status, h.serveOne(ctx, r.Method, reqs[0]), h.opt.Pretty)
		return
	}
	out := make([]response, len(reqs))
	for i, req := range reqs {
		out[i] = h.serveOne(ctx, r.Method, req)
	}
	writeJSON(w, status, out, h.opt.Pretty)
}

func (h *Handler) serveOne(ctx context.Context, method string, req GraphQLRequest) response {
	doc, errs := h.prepare(req.Query)
	if errs != nil {
		return response{Errors: errs}
	}
	opType := operationType(doc, req.OperationName)
	switch {
	case opType == language.Subscription:
		return failure("subscriptions are only available over WebSocket")
	case opType == language.Mutation && method == http.MethodGet:
		return failure("mutations are not allowed over GET")
	}
	return responseFrom(h.execute(ctx, req, doc, opType))
}

// prepare parses query and validates it when the schema allows.
func (h *Handler) prepare(query string) (*language.QueryDocument, []responseError) {
	if h.validated != nil {
		doc, errs := language.LoadQuery(h.validated, query)
		if len(errs) > 0 {
			return nil, fromGQLList(errs)
		}
		return doc, nil
	}
	doc, err := language.ParseQuery(query)
	if err == nil {
		return doc, nil
	}
	var gqlErr *language.Error
	if errors.As(err, &gqlErr) {
		return nil, []responseError{fromGQL(gqlErr)}
	}
	return nil, []responseError{{Message: err.Error()}}
}

// execute runs a query or mutation between GraphQLStart and GraphQLFinish
// events.
func (h *Handler) execute(ctx context.Context, req GraphQLRequest, doc *language.QueryDocument, opType language.Operation) *executor.ExecutionResult {
	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName, OperationType: string(opType)})
	result := h.exec.Execute(ctx, executor.Params{
		Document:      doc,
		OperationName: req.OperationName,
		Variables:     req.Variables,
	})
	errs := make([]error, len(result.Errors))
	for i, err := range result.Errors {
		errs[i] = err
	}
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: string(opType),
		Errors:        errs,
		Duration:      time.Since(start),
	})
	return result
}

func operationType(doc *language.QueryDocument, name string) language.Operation {
	if op := doc.Operations.ForName(name); op != nil {
		return op.Operation
	}
	return ""
}
