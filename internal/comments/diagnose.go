package comments

import (
	"context"
	"fmt"
	"strings"

	"github.com/bryan-buckman/ncv/internal/model"
	"github.com/bryan-buckman/ncv/internal/notion"
)

const (
	parentAccessError  = "parent database access error: "
	commentAccessError = "comment access error: "
)

// Diagnose reports whether rawID can be read and what kind of node it is.
// Every lookup is attempted independently and the result is always populated
// as far as possible.
func (e *Engine) Diagnose(ctx context.Context, rawID string) model.Diagnosis {
	d := model.Diagnosis{
		Kind:         model.KindUnknown,
		NormalizedID: strings.TrimSpace(rawID),
	}
	id, err := notion.NormalizeID(rawID)
	if err != nil {
		d.Error = err.Error()
		return d
	}
	d.NormalizedID = id

	db, err := e.remote.RetrieveDatabase(ctx, id)
	if err == nil {
		d.Access = true
		d.Kind = model.KindDatabase
		d.Title = db.Name()
		if records, err := e.remote.QueryDatabase(ctx, id, 1); err != nil {
			e.log.Debug().Str("id", id).Err(err).Msg("diagnose: cannot query database")
		} else {
			e.log.Debug().Str("id", id).Bool("has_records", len(records) > 0).Msg("diagnose: database")
		}
		return d
	}
	e.log.Debug().Str("id", id).Err(err).Msg("diagnose: not readable as database")

	obj, err := e.remote.RetrievePage(ctx, id)
	if err != nil {
		d.Error = err.Error()
		e.log.Debug().Str("id", id).Err(err).Msg("diagnose: not readable as page")
		return d
	}
	d.Access = true
	d.Kind = obj.Kind
	d.Title = obj.Title()

	switch parent := obj.Parent(); parent.Type {
	case notion.ParentTypeDatabase:
		d.ParentKind = model.ParentDatabase
		d.ParentID = parent.DatabaseID
		info := &model.CollectionInfo{ID: parent.DatabaseID}
		if db, err := e.remote.RetrieveDatabase(ctx, parent.DatabaseID); err != nil {
			d.Error = parentAccessError + err.Error()
		} else {
			info.Access = true
			info.Name = db.Name()
			if info.Name == "" {
				info.Name = unknownDatabase
			}
		}
		d.CollectionInfo = info
	case notion.ParentTypeWorkspace:
		d.ParentKind = model.ParentWorkspace
	case notion.ParentTypePage, notion.ParentTypeBlock:
		d.ParentKind = model.ParentPage
		d.ParentID = parent.ID()
	}

	if _, err := e.remote.ListComments(ctx, id); err != nil {
		d.Error = commentAccessError + err.Error()
	}
	return d
}

// Recommendations turns a diagnosis into advice for the user.
func Recommendations(d model.Diagnosis) []string {
	var recs []string
	if !d.Access {
		recs = append(recs, "The page or database is not accessible. Share it with the Notion integration.")
		if strings.Contains(d.Error, notion.SharePhrase) {
			recs = append(recs, "Open the page in Notion and grant the integration access from the Share menu in the top right corner.")
		}
	} else {
		if strings.HasPrefix(d.Error, commentAccessError) {
			recs = append(recs, "The page is readable but its comments are not. Try sharing the page with the integration again.")
		}
		if d.Kind == model.KindPage && d.ParentKind == model.ParentDatabase {
			recs = append(recs, "This page is a record in a database. Grant the integration access to the database itself as well.")
			if d.ParentID != "" {
				recs = append(recs, fmt.Sprintf("Parent database ID: %s. Grant the integration access to this database too.", d.ParentID))
			}
			if info := d.CollectionInfo; info != nil {
				if info.Access {
					recs = append(recs, fmt.Sprintf("The integration can read the parent database %q, but the records in it must be shared as well.", info.Name))
				} else {
					recs = append(recs, fmt.Sprintf("The integration cannot read the parent database (ID: %s). Share the database with the integration.", info.ID))
				}
			}
		}
		if d.Kind == model.KindDatabase {
			recs = append(recs,
				"This ID points to a database. Each record (page) in it must also be accessible to the integration.",
				"Grant the integration access to page content from the database's Share menu.")
		}
	}
	return append(recs, "Permission changes in Notion can take a few minutes to apply. Wait a moment and try again.")
}
