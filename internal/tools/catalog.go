// Package tools holds the closed catalog of Play Console operations exposed
// over MCP: reviews, reply, vitals metrics, subscription checks, listing
// reads and mutations, images, app details, experiments, and local metadata
// and asset linting. The catalog is built once at startup and read-only
// afterwards; each dispatch is stateless and independent.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RobinCoderZhao/play-console-mcp/internal/playapi"
	"github.com/RobinCoderZhao/play-console-mcp/pkg/mcpserver"
)

// HandlerFunc executes a tool with already-validated arguments. Its only
// side effect is upstream calls through the injected client.
type HandlerFunc func(ctx context.Context, args Args) (any, error)

// Definition binds a tool name to its input schema and handler.
type Definition struct {
	Name        string
	Description string
	Fields      []Field
	Handler     HandlerFunc
}

// Invocation is the audit record of one dispatch.
type Invocation struct {
	Tool     string
	Outcome  string // "success" or the error kind
	Detail   string // error message, empty on success
	Duration time.Duration
}

// Recorder observes dispatch outcomes. Implementations must not fail the
// dispatch; errors on the recording path are their own problem.
type Recorder interface {
	Record(ctx context.Context, inv Invocation)
}

// Catalog is the fixed tool registry plus the dispatcher over it.
type Catalog struct {
	defs   []*Definition
	byName map[string]*Definition
	logger *slog.Logger
	rec    Recorder
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithRecorder attaches an invocation recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Catalog) { c.rec = r }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// NewCatalog builds the catalog over the given upstream client. The set of
// tools is hard-coded; there is no dynamic registration.
func NewCatalog(client *playapi.Client, opts ...Option) *Catalog {
	c := &Catalog{
		byName: make(map[string]*Definition),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.register(
		listReviewsTool(client),
		replyToReviewTool(client),
		crashRateTool(client),
		anrRateTool(client),
		getSubscriptionV2Tool(client),
		createListingExperimentTool(client),
		listLocalizedListingsTool(client),
		getListingTool(client),
		patchListingTool(client),
		updateListingTool(client),
		imagesListTool(client),
		imagesDeleteAllTool(client),
		detailsGetTool(client),
		detailsUpdateTool(client),
		listLocaleCoverageTool(client),
		cloneListingToLocaleTool(client),
		validateMetadataPolicyTool(),
		assetSpecCheckTool(),
	)
	return c
}

func (c *Catalog) register(defs ...*Definition) {
	for _, d := range defs {
		if _, dup := c.byName[d.Name]; dup {
			panic(fmt.Sprintf("tools: duplicate tool name %q", d.Name))
		}
		c.defs = append(c.defs, d)
		c.byName[d.Name] = d
		c.logger.Info("registered tool", "name", d.Name)
	}
}

// Tools returns the catalog in registration order for tools/list.
func (c *Catalog) Tools() []mcpserver.ToolDef {
	out := make([]mcpserver.ToolDef, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, mcpserver.ToolDef{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: inputSchema(d.Fields),
		})
	}
	return out
}

// Dispatch validates and executes one invocation. Every failure comes back
// as a structured *playapi.Error; success payloads pass through unmodified.
func (c *Catalog) Dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	start := time.Now()
	payload, perr := c.dispatch(ctx, name, Args(args))

	if c.rec != nil {
		inv := Invocation{Tool: name, Outcome: "success", Duration: time.Since(start)}
		if perr != nil {
			inv.Outcome = string(perr.Kind)
			inv.Detail = perr.Message
		}
		c.rec.Record(ctx, inv)
	}

	if perr != nil {
		return nil, perr
	}
	return payload, nil
}

func (c *Catalog) dispatch(ctx context.Context, name string, args Args) (any, *playapi.Error) {
	def, ok := c.byName[name]
	if !ok {
		return nil, playapi.Validationf("", "unknown tool %q", name)
	}
	if err := validateArgs(def.Fields, args); err != nil {
		return nil, err
	}
	payload, err := def.Handler(ctx, args)
	if err != nil {
		return nil, playapi.Coerce(err)
	}
	return payload, nil
}

var _ mcpserver.Dispatcher = (*Catalog)(nil)
