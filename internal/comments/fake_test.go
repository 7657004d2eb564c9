package comments

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bryan-buckman/ncv/internal/model"
	"github.com/bryan-buckman/ncv/internal/notion"
)

// fakeRemote serves a fixed node graph. Errors are keyed by "<op>:<id>".
type fakeRemote struct {
	pages     map[string]*notion.Page
	databases map[string]*notion.Database
	records   map[string][]notion.Page
	children  map[string][]notion.Block
	comments  map[string][]notion.Comment
	// late holds comments that only appear from the second listing on.
	late    map[string][]notion.Comment
	results []notion.Object
	errs    map[string]error
	calls   map[string]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		pages:     map[string]*notion.Page{},
		databases: map[string]*notion.Database{},
		records:   map[string][]notion.Page{},
		children:  map[string][]notion.Block{},
		comments:  map[string][]notion.Comment{},
		late:      map[string][]notion.Comment{},
		errs:      map[string]error{},
		calls:     map[string]int{},
	}
}

func (f *fakeRemote) hit(op, id string) error {
	key := op + ":" + id
	f.calls[key]++
	return f.errs[key]
}

func notFound(op, id string) error {
	return &notion.RemoteError{Op: op, Status: http.StatusBadRequest, Code: "validation_error", Message: "path failed validation: " + id}
}

func denied(id string) error {
	return &notion.RemoteError{
		Op:      "comments",
		Status:  http.StatusNotFound,
		Code:    "object_not_found",
		Message: fmt.Sprintf("Could not find block with ID: %s. %s.", id, notion.SharePhrase),
	}
}

func (f *fakeRemote) RetrievePage(_ context.Context, id string) (notion.Object, error) {
	if err := f.hit("page", id); err != nil {
		return notion.Object{}, err
	}
	p, ok := f.pages[id]
	if !ok {
		return notion.Object{}, notFound("page", id)
	}
	return notion.PageObject(p), nil
}

func (f *fakeRemote) RetrieveDatabase(_ context.Context, id string) (*notion.Database, error) {
	if err := f.hit("database", id); err != nil {
		return nil, err
	}
	d, ok := f.databases[id]
	if !ok {
		return nil, notFound("database", id)
	}
	return d, nil
}

func (f *fakeRemote) QueryDatabase(_ context.Context, id string, pageSize int) ([]notion.Page, error) {
	if err := f.hit("query", id); err != nil {
		return nil, err
	}
	recs := f.records[id]
	if len(recs) > pageSize {
		recs = recs[:pageSize]
	}
	return recs, nil
}

func (f *fakeRemote) ListBlockChildren(_ context.Context, id string, _ int) ([]notion.Block, error) {
	if err := f.hit("children", id); err != nil {
		return nil, err
	}
	return f.children[id], nil
}

func (f *fakeRemote) ListComments(_ context.Context, id string) ([]notion.Comment, error) {
	if err := f.hit("comments", id); err != nil {
		return nil, err
	}
	if late, ok := f.late[id]; ok && f.calls["comments:"+id] > 1 {
		return late, nil
	}
	return f.comments[id], nil
}

func (f *fakeRemote) Search(_ context.Context, query string) ([]notion.Object, error) {
	if err := f.hit("search", query); err != nil {
		return nil, err
	}
	return f.results, nil
}

// addPage registers a page titled title under parent.
func (f *fakeRemote) addPage(id, title string, parent notion.Parent) *notion.Page {
	p := &notion.Page{
		ID:         id,
		URL:        notion.PageURL(id),
		Parent:     parent,
		Properties: titleProps("title", title),
	}
	f.pages[id] = p
	return p
}

func (f *fakeRemote) addDatabase(id, title string) *notion.Database {
	d := &notion.Database{
		ID:     id,
		URL:    notion.PageURL(id),
		Parent: workspace(),
		Title:  spans(title),
	}
	f.databases[id] = d
	return d
}

// addRecord registers a record of database dbID.
func (f *fakeRemote) addRecord(dbID, id, title string) {
	p := &notion.Page{
		ID:         id,
		Parent:     notion.Parent{Type: notion.ParentTypeDatabase, DatabaseID: dbID},
		Properties: titleProps("Name", title),
	}
	f.pages[id] = p
	f.records[dbID] = append(f.records[dbID], *p)
}

func (f *fakeRemote) link(parent string, kids ...string) {
	for _, k := range kids {
		f.children[parent] = append(f.children[parent], notion.Block{ID: k, Type: notion.BlockTypeChildPage})
	}
}

func titleProps(name, title string) notion.Properties {
	if title == "" {
		return nil
	}
	return notion.Properties{{Name: name, ID: "title", Type: "title", Title: spans(title)}}
}

func spans(text string) []notion.RichText {
	if text == "" {
		return nil
	}
	return []notion.RichText{{Type: "text", PlainText: text}}
}

func workspace() notion.Parent {
	return notion.Parent{Type: notion.ParentTypeWorkspace, Workspace: true}
}

func underPage(id string) notion.Parent {
	return notion.Parent{Type: notion.ParentTypePage, PageID: id}
}

func rawComment(id string, by notion.User, at time.Time, text string, replies ...notion.Comment) notion.Comment {
	c := notion.Comment{
		ID:           id,
		DiscussionID: "d-" + id,
		CreatedTime:  at.Format(time.RFC3339),
		CreatedBy:    by,
		RichText:     spans(text),
	}
	if len(replies) > 0 {
		c.Discussion = &notion.Discussion{Comments: replies}
	}
	return c
}

func mention(u notion.User) notion.RichText {
	return notion.RichText{
		Type:      "mention",
		PlainText: "@" + u.Name,
		Mention:   &notion.Mention{Type: "user", User: &u},
	}
}

var (
	ada   = notion.User{ID: "user-ada", Name: "Ada"}
	grace = notion.User{ID: "user-grace", Name: "Grace"}
	alan  = notion.User{ID: "user-alan", Name: "Alan"}

	adaRef = model.UserRef{ID: "user-ada", Name: "Ada"}

	fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

func newTestEngine(f *fakeRemote) *Engine {
	return New(f, WithClock(func() time.Time { return fixedNow }))
}

// Valid node IDs.
const (
	rootID = "11111111-1111-1111-1111-111111111111"
	pageB  = "22222222-2222-2222-2222-222222222222"
	pageC  = "33333333-3333-3333-3333-333333333333"
	pageD  = "44444444-4444-4444-4444-444444444444"
	dbID   = "55555555-5555-5555-5555-555555555555"
	rec1   = "66666666-6666-6666-6666-666666666666"
	rec2   = "77777777-7777-7777-7777-777777777777"
)
