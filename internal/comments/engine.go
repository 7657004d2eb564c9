// Package comments aggregates the comments of a Notion page tree.
//
// The Engine discovers every page and database record under a root, fetches
// and normalizes the comments of each node, and absorbs per-node failures so
// that one unshared page never hides the comments of the rest. All work is
// sequential and nothing is kept between calls.
package comments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryan-buckman/ncv/internal/notion"
)

// PageSize is the number of children or records read per node. Only the first
// page of results is used.
const PageSize = notion.MaxPageSize

// Placeholder texts.
const (
	untitled        = "Untitled"
	untitledRecord  = "Untitled Record"
	unknownDatabase = "Unknown"
	unknownAuthor   = "Unknown"
	loadError       = "<load error>"
)

// ErrMissingRoot is returned when no root ID is supplied.
var ErrMissingRoot = errors.New("no root page id supplied")

// Remote is the subset of the Notion API the engine consumes.
type Remote interface {
	RetrievePage(ctx context.Context, id string) (notion.Object, error)
	RetrieveDatabase(ctx context.Context, id string) (*notion.Database, error)
	QueryDatabase(ctx context.Context, id string, pageSize int) ([]notion.Page, error)
	ListBlockChildren(ctx context.Context, id string, pageSize int) ([]notion.Block, error)
	ListComments(ctx context.Context, id string) ([]notion.Comment, error)
	Search(ctx context.Context, query string) ([]notion.Object, error)
}

// Ensure the Notion client satisfies Remote.
var _ Remote = (*notion.Client)(nil)

// NodeError records a failure that was absorbed while processing one node.
type NodeError struct {
	ID  string
	Err error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.ID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Engine runs diagnosis, traversal, comment fetching and search against one
// Remote.
type Engine struct {
	remote Remote
	log    zerolog.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock sets the time source used by filters and degraded records.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine.
func New(remote Remote, opts ...Option) *Engine {
	e := &Engine{
		remote: remote,
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
