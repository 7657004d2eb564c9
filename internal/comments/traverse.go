package comments

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/bryan-buckman/ncv/internal/model"
	"github.com/bryan-buckman/ncv/internal/notion"
)

// Traverse returns root and every page or record reachable from it, in
// depth-first discovery order with root first. Each ID appears once, so
// reference cycles terminate.
//
// Nodes are expanded two ways: embedded child pages, and, when the node is a
// database, its records. A record's siblings are not expanded from the record.
//
// Failures never stop the traversal. The returned error, when non-nil, is a
// *multierror.Error of *NodeError values describing the nodes whose metadata
// could not be read.
func (e *Engine) Traverse(ctx context.Context, root string) ([]string, error) {
	var (
		visited = make(map[string]bool)
		order   []string
		soft    *multierror.Error
		stack   = []string{root}
	)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			soft = multierror.Append(soft, err)
			break
		}
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		order = append(order, id)

		children := e.childPages(ctx, id)
		records, err := e.collectionRecords(ctx, id)
		if err != nil {
			soft = multierror.Append(soft, &NodeError{ID: id, Err: err})
		}

		// The stack is LIFO: push records first so children are explored
		// before them, matching recursive order.
		for i := len(records) - 1; i >= 0; i-- {
			if !visited[records[i]] {
				stack = append(stack, records[i])
			}
		}
		for i := len(children) - 1; i >= 0; i-- {
			if !visited[children[i]] {
				stack = append(stack, children[i])
			}
		}
	}
	e.log.Debug().Str("root", root).Int("nodes", len(order)).Msg("traversal complete")
	return order, soft.ErrorOrNil()
}

// childPages lists the embedded child pages of id. Failure means no children.
func (e *Engine) childPages(ctx context.Context, id string) []string {
	blocks, err := e.remote.ListBlockChildren(ctx, id, PageSize)
	if err != nil {
		e.log.Debug().Str("id", id).Err(err).Msg("cannot list child blocks")
		return nil
	}
	var ids []string
	for _, b := range blocks {
		if b.IsChildPage() {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

// collectionRecords returns the record IDs of id when it is a database, and
// nil otherwise. The error is set when neither page nor database metadata
// could be read, or when a database's records could not be queried.
func (e *Engine) collectionRecords(ctx context.Context, id string) ([]string, error) {
	obj, err := e.remote.RetrievePage(ctx, id)
	switch {
	case err == nil && obj.Kind == model.KindDatabase:
	case err == nil:
		if p := obj.Parent(); p.Type == notion.ParentTypeDatabase {
			e.log.Debug().Str("id", id).Str("database", p.DatabaseID).Msg("record of database, siblings not expanded")
		}
		return nil, nil
	default:
		if _, dbErr := e.remote.RetrieveDatabase(ctx, id); dbErr != nil {
			if notion.IsAccessDenied(err) {
				e.log.Warn().Str("id", id).Msg("page is not shared with the integration")
			} else {
				e.log.Debug().Str("id", id).Err(err).Msg("cannot read node metadata")
			}
			return nil, err
		}
	}

	e.log.Debug().Str("id", id).Msg("database found, expanding records")
	records, err := e.remote.QueryDatabase(ctx, id, PageSize)
	if err != nil {
		e.log.Debug().Str("id", id).Err(err).Msg("cannot query database")
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids, nil
}
