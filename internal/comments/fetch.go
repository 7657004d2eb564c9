package comments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/bryan-buckman/ncv/internal/model"
	"github.com/bryan-buckman/ncv/internal/notion"
)

// FetchComments returns the normalized comments attached to id.
//
// When id is a database, the comments on the database itself and on each of
// its records are returned, with record titles of the form "<db> > <record>".
// Otherwise id is read as a page.
//
// The comment list is always usable. The error only describes absorbed
// failures: a *NodeError when the page's comments could not be read, or a
// *multierror.Error of them for database records.
func (e *Engine) FetchComments(ctx context.Context, id string) ([]model.Comment, error) {
	if db, err := e.remote.RetrieveDatabase(ctx, id); err == nil {
		return e.databaseComments(ctx, id, db)
	}

	raw, err := e.remote.ListComments(ctx, id)
	if err != nil {
		if notion.IsAccessDenied(err) {
			e.log.Warn().Str("id", id).Msg("comments are not shared with the integration")
		} else {
			e.log.Info().Str("id", id).Err(err).Msg("cannot list comments")
		}
		return nil, &NodeError{ID: id, Err: err}
	}

	var title string
	if len(raw) == 0 {
		raw, title = e.recordComments(ctx, id)
		if len(raw) == 0 {
			return nil, nil
		}
	} else {
		title = e.pageTitle(ctx, id)
	}
	e.log.Debug().Str("id", id).Int("comments", len(raw)).Msg("page comments")
	return e.buildComments(raw, id, title), nil
}

func (e *Engine) databaseComments(ctx context.Context, id string, db *notion.Database) ([]model.Comment, error) {
	var (
		out  []model.Comment
		soft *multierror.Error
	)
	dbTitle := db.Name()
	if dbTitle == "" {
		dbTitle = untitled
	}

	own, err := e.remote.ListComments(ctx, id)
	if err != nil {
		e.log.Debug().Str("id", id).Err(err).Msg("cannot list database comments")
		soft = multierror.Append(soft, &NodeError{ID: id, Err: err})
	} else {
		out = append(out, e.buildComments(own, id, dbTitle)...)
	}

	records, err := e.remote.QueryDatabase(ctx, id, PageSize)
	if err != nil {
		e.log.Info().Str("id", id).Err(err).Msg("cannot query database records")
		soft = multierror.Append(soft, &NodeError{ID: id, Err: err})
	}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			soft = multierror.Append(soft, err)
			break
		}
		raw, err := e.remote.ListComments(ctx, rec.ID)
		if err != nil {
			e.log.Info().Str("id", rec.ID).Str("database", id).Err(err).Msg("cannot list record comments")
			soft = multierror.Append(soft, &NodeError{ID: rec.ID, Err: err})
			continue
		}
		if len(raw) == 0 {
			continue
		}
		recTitle := rec.Properties.FirstTitle()
		if recTitle == "" {
			recTitle = untitledRecord
		}
		out = append(out, e.buildComments(raw, rec.ID, dbTitle+" > "+recTitle)...)
	}
	e.log.Debug().Str("id", id).Int("records", len(records)).Int("comments", len(out)).Msg("database comments")
	return out, soft.ErrorOrNil()
}

// recordComments handles a page with no comments on the first read: when it
// is a database record the list is read once more and the title is prefixed
// with the database name.
func (e *Engine) recordComments(ctx context.Context, id string) ([]notion.Comment, string) {
	obj, err := e.remote.RetrievePage(ctx, id)
	if err != nil {
		e.log.Debug().Str("id", id).Err(err).Msg("cannot read page metadata")
		return nil, ""
	}
	parent := obj.Parent()
	if parent.Type != notion.ParentTypeDatabase {
		return nil, ""
	}

	own := untitled
	if obj.Page != nil {
		if t := obj.Page.Properties.FirstTitle(); t != "" {
			own = t
		}
	}
	dbName := unknownDatabase
	if db, err := e.remote.RetrieveDatabase(ctx, parent.DatabaseID); err != nil {
		e.log.Debug().Str("database", parent.DatabaseID).Err(err).Msg("cannot read parent database")
	} else if n := db.Name(); n != "" {
		dbName = n
	}

	raw, err := e.remote.ListComments(ctx, id)
	if err != nil {
		e.log.Debug().Str("id", id).Err(err).Msg("cannot re-read record comments")
		return nil, ""
	}
	return raw, dbName + " > " + own
}

// pageTitle resolves the title of a page, or a placeholder naming its ID
// when the page cannot be read.
func (e *Engine) pageTitle(ctx context.Context, id string) string {
	obj, err := e.remote.RetrievePage(ctx, id)
	if err != nil {
		e.log.Debug().Str("id", id).Err(err).Msg("cannot read page title")
		return fmt.Sprintf("Page (ID: %s...)", notion.ShortID(id))
	}
	if t := obj.Title(); t != "" {
		return t
	}
	return untitled
}

func (e *Engine) buildComments(raw []notion.Comment, pageID, title string) []model.Comment {
	out := make([]model.Comment, 0, len(raw))
	for _, c := range raw {
		built, err := buildComment(c, pageID, title)
		if err != nil {
			e.log.Warn().Str("comment", c.ID).Str("page", pageID).Err(err).Msg("degraded comment")
			built = e.degraded(c, pageID, title)
		}
		out = append(out, built)
	}
	return out
}

func buildComment(c notion.Comment, pageID, title string) (model.Comment, error) {
	created, err := parseTime(c.CreatedTime)
	if err != nil {
		return model.Comment{}, fmt.Errorf("comment %s: %w", c.ID, err)
	}
	thread := []model.ThreadEntry{}
	if c.Discussion != nil {
		for _, r := range c.Discussion.Comments {
			at, err := parseTime(r.CreatedTime)
			if err != nil {
				return model.Comment{}, fmt.Errorf("reply %s: %w", r.ID, err)
			}
			thread = append(thread, model.ThreadEntry{
				CommentID: r.ID,
				Author:    r.CreatedBy.Ref(),
				Content:   notion.PlainText(r.RichText),
				CreatedAt: at,
				Mentions:  mentions(r.RichText),
			})
		}
	}
	last := created
	if len(thread) > 0 {
		last = thread[len(thread)-1].CreatedAt
	}
	return model.Comment{
		CommentID:     c.ID,
		PageID:        pageID,
		PageTitle:     title,
		Author:        c.CreatedBy.Ref(),
		Content:       notion.PlainText(c.RichText),
		IsResolved:    c.Resolved,
		LastRepliedAt: last,
		Mentions:      mentions(c.RichText),
		Thread:        thread,
	}, nil
}

// degraded stands in for a comment that could not be normalized so totals
// stay correct.
func (e *Engine) degraded(c notion.Comment, pageID, title string) model.Comment {
	id := c.ID
	if id == "" {
		id = "unknown-id"
	}
	return model.Comment{
		CommentID:     id,
		PageID:        pageID,
		PageTitle:     title,
		Author:        model.UserRef{Name: unknownAuthor},
		Content:       loadError,
		LastRepliedAt: e.now(),
		Mentions:      []model.UserRef{},
		Thread:        []model.ThreadEntry{},
	}
}

func mentions(spans []notion.RichText) []model.UserRef {
	if users := notion.MentionedUsers(spans); users != nil {
		return users
	}
	return []model.UserRef{}
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	return time.Parse(time.RFC3339, s)
}
