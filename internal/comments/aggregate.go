package comments

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/bryan-buckman/ncv/internal/filter"
	"github.com/bryan-buckman/ncv/internal/model"
	"github.com/bryan-buckman/ncv/internal/notion"
)

// Aggregate collects the comments under rawRoot and applies the filters in
// opts on behalf of user.
//
// Only a missing or malformed root is a hard error. Nodes that cannot be read
// are skipped; those the integration has not been given access to are listed
// in NotFoundPageIDs and flag HasPermissionIssues.
func (e *Engine) Aggregate(ctx context.Context, rawRoot string, opts model.Options, user model.UserRef) (*model.AggregateResult, error) {
	if strings.TrimSpace(rawRoot) == "" {
		return nil, ErrMissingRoot
	}
	root, err := notion.NormalizeID(rawRoot)
	if err != nil {
		return nil, err
	}

	res := &model.AggregateResult{
		Comments:        []model.Comment{},
		NotFoundPageIDs: []string{},
	}
	if db, err := e.remote.RetrieveDatabase(ctx, root); err == nil {
		res.IsDatabase = true
		res.DatabaseName = db.Name()
	}

	var soft *multierror.Error
	ids := []string{root}
	if opts.IncludeSubPages {
		found, err := e.Traverse(ctx, root)
		ids = found
		soft = multierror.Append(soft, err)
	}

	seen := make(map[string]bool)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		cs, err := e.FetchComments(ctx, id)
		soft = multierror.Append(soft, err)
		for _, c := range cs {
			// A database root reports its records' comments itself; the
			// records' own visits would repeat them.
			if seen[c.CommentID] {
				continue
			}
			seen[c.CommentID] = true
			res.Comments = append(res.Comments, c)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.flagPermissionIssues(res, soft)
	total := len(res.Comments)
	res.Comments = filter.Apply(res.Comments, opts, user, e.now())

	e.log.Info().
		Str("root", root).
		Int("nodes", len(ids)).
		Int("comments", total).
		Int("filtered", len(res.Comments)).
		Int("not_found", len(res.NotFoundPageIDs)).
		Msg("aggregated comments")
	return res, nil
}

func (e *Engine) flagPermissionIssues(res *model.AggregateResult, soft *multierror.Error) {
	if soft.ErrorOrNil() == nil {
		return
	}
	e.log.Debug().Err(soft).Int("failures", len(soft.Errors)).Msg("skipped nodes")
	for _, err := range soft.Errors {
		var ne *NodeError
		if !errors.As(err, &ne) || !notion.IsAccessDenied(ne.Err) {
			continue
		}
		res.HasPermissionIssues = true
		if !slices.Contains(res.NotFoundPageIDs, ne.ID) {
			res.NotFoundPageIDs = append(res.NotFoundPageIDs, ne.ID)
		}
	}
}
