package comments

import (
	"context"
	"fmt"

	"github.com/bryan-buckman/ncv/internal/model"
	"github.com/bryan-buckman/ncv/internal/notion"
)

// Search finds candidate roots matching query. Titles the search response
// leaves empty are looked up individually.
func (e *Engine) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	objs, err := e.remote.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	results := make([]model.SearchResult, 0, len(objs))
	for _, obj := range objs {
		u := obj.URL()
		if u == "" && obj.ID() != "" {
			u = notion.PageURL(obj.ID())
		}
		results = append(results, model.SearchResult{
			ID:    obj.ID(),
			Title: e.searchTitle(ctx, obj),
			URL:   u,
		})
	}
	e.log.Debug().Str("query", query).Int("results", len(results)).Msg("search")
	return results, nil
}

func (e *Engine) searchTitle(ctx context.Context, obj notion.Object) string {
	title := obj.Title()
	if title == "" && obj.Kind == model.KindDatabase {
		if db, err := e.remote.RetrieveDatabase(ctx, obj.ID()); err != nil {
			e.log.Debug().Str("id", obj.ID()).Err(err).Msg("search: cannot read database title")
		} else {
			title = db.Name()
		}
	}
	if title == "" && obj.ID() != "" {
		if detail, err := e.remote.RetrievePage(ctx, obj.ID()); err != nil {
			e.log.Debug().Str("id", obj.ID()).Err(err).Msg("search: cannot read page title")
		} else {
			title = detail.Title()
		}
	}
	if title == "" {
		return untitled
	}
	return title
}
