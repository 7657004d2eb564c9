package comments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/ncv/internal/model"
	"github.com/bryan-buckman/ncv/internal/notion"
)

func TestFetchComments_PageWithThread(t *testing.T) {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	replied := created.Add(3 * time.Hour)

	f := newFakeRemote()
	f.addPage(rootID, "Roadmap", workspace())
	head := rawComment("c1", ada, created, "")
	head.RichText = []notion.RichText{{Type: "text", PlainText: "ping "}, mention(grace)}
	head.Discussion = &notion.Discussion{Comments: []notion.Comment{
		rawComment("c2", grace, created.Add(time.Hour), "on it"),
		rawComment("c3", alan, replied, "done"),
	}}
	f.comments[rootID] = []notion.Comment{head}

	cs, err := newTestEngine(f).FetchComments(context.Background(), rootID)
	require.NoError(t, err)
	require.Len(t, cs, 1)

	c := cs[0]
	assert.Equal(t, "c1", c.CommentID)
	assert.Equal(t, rootID, c.PageID)
	assert.Equal(t, "Roadmap", c.PageTitle)
	assert.Equal(t, adaRef, c.Author)
	assert.Equal(t, "ping @Grace", c.Content)
	assert.Equal(t, []model.UserRef{{ID: "user-grace", Name: "Grace"}}, c.Mentions)
	require.Len(t, c.Thread, 2)
	assert.Equal(t, "done", c.Thread[1].Content)
	assert.True(t, c.LastRepliedAt.Equal(replied))
}

func TestFetchComments_LastRepliedAtWithoutThread(t *testing.T) {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f := newFakeRemote()
	f.addPage(rootID, "Roadmap", workspace())
	f.comments[rootID] = []notion.Comment{rawComment("c1", ada, created, "hello")}

	cs, err := newTestEngine(f).FetchComments(context.Background(), rootID)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.True(t, cs[0].LastRepliedAt.Equal(created))
	assert.NotNil(t, cs[0].Thread)
	assert.Empty(t, cs[0].Thread)
	assert.NotNil(t, cs[0].Mentions)
}

func TestFetchComments_NoComments(t *testing.T) {
	f := newFakeRemote()
	f.addPage(rootID, "Roadmap", workspace())

	cs, err := newTestEngine(f).FetchComments(context.Background(), rootID)
	require.NoError(t, err)
	assert.Empty(t, cs)
	assert.Equal(t, 1, f.calls["comments:"+rootID])
}

func TestFetchComments_RecordRetry(t *testing.T) {
	f := newFakeRemote()
	f.addDatabase(dbID, "Tasks")
	f.addRecord(dbID, rec1, "Write docs")
	f.late[rec1] = []notion.Comment{rawComment("c1", ada, fixedNow, "late")}

	cs, err := newTestEngine(f).FetchComments(context.Background(), rec1)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "Tasks > Write docs", cs[0].PageTitle)
	assert.Equal(t, rec1, cs[0].PageID)
	assert.Equal(t, 2, f.calls["comments:"+rec1])
}

func TestFetchComments_RecordRetryUnknownDatabase(t *testing.T) {
	f := newFakeRemote()
	f.pages[rec1] = &notion.Page{
		ID:     rec1,
		Parent: notion.Parent{Type: notion.ParentTypeDatabase, DatabaseID: dbID},
	}
	f.late[rec1] = []notion.Comment{rawComment("c1", ada, fixedNow, "late")}

	cs, err := newTestEngine(f).FetchComments(context.Background(), rec1)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "Unknown > Untitled", cs[0].PageTitle)
}

func TestFetchComments_Denied(t *testing.T) {
	f := newFakeRemote()
	f.errs["comments:"+pageB] = denied(pageB)

	cs, err := newTestEngine(f).FetchComments(context.Background(), pageB)
	assert.Empty(t, cs)
	var ne *NodeError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, pageB, ne.ID)
	assert.True(t, notion.IsAccessDenied(err))
}

func TestFetchComments_TitleFallbacks(t *testing.T) {
	f := newFakeRemote()
	f.addPage(rootID, "", workspace())
	f.comments[rootID] = []notion.Comment{rawComment("c1", ada, fixedNow, "x")}
	f.comments[pageB] = []notion.Comment{rawComment("c2", ada, fixedNow, "y")}

	e := newTestEngine(f)
	cs, err := e.FetchComments(context.Background(), rootID)
	require.NoError(t, err)
	assert.Equal(t, "Untitled", cs[0].PageTitle)

	cs, err = e.FetchComments(context.Background(), pageB)
	require.NoError(t, err)
	assert.Equal(t, "Page (ID: 22222222...)", cs[0].PageTitle)
}

func TestFetchComments_Database(t *testing.T) {
	f := newFakeRemote()
	f.addDatabase(dbID, "Tasks")
	f.addRecord(dbID, rec1, "Write docs")
	f.addRecord(dbID, rec2, "")
	f.addRecord(dbID, pageC, "Quiet")
	f.comments[dbID] = []notion.Comment{rawComment("c0", ada, fixedNow, "on the db")}
	f.comments[rec1] = []notion.Comment{rawComment("c1", ada, fixedNow, "first")}
	f.comments[rec2] = []notion.Comment{rawComment("c2", grace, fixedNow, "second")}

	cs, err := newTestEngine(f).FetchComments(context.Background(), dbID)
	require.NoError(t, err)
	require.Len(t, cs, 3)
	assert.Equal(t, "Tasks", cs[0].PageTitle)
	assert.Equal(t, dbID, cs[0].PageID)
	assert.Equal(t, "Tasks > Write docs", cs[1].PageTitle)
	assert.Equal(t, rec1, cs[1].PageID)
	assert.Equal(t, "Tasks > Untitled Record", cs[2].PageTitle)
	// The database is not also read as a page.
	assert.Zero(t, f.calls["page:"+dbID])
}

func TestFetchComments_DatabaseRecordFailure(t *testing.T) {
	f := newFakeRemote()
	f.addDatabase(dbID, "Tasks")
	f.addRecord(dbID, rec1, "Write docs")
	f.addRecord(dbID, rec2, "Ship")
	f.comments[rec2] = []notion.Comment{rawComment("c2", grace, fixedNow, "second")}
	f.errs["comments:"+rec1] = denied(rec1)
	f.errs["comments:"+dbID] = errors.New("flaky")

	cs, err := newTestEngine(f).FetchComments(context.Background(), dbID)
	require.Len(t, cs, 1)
	assert.Equal(t, "c2", cs[0].CommentID)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)
}

func TestFetchComments_DegradedComment(t *testing.T) {
	f := newFakeRemote()
	f.addPage(rootID, "Roadmap", workspace())
	good := rawComment("c1", ada, fixedNow.Add(-time.Hour), "fine")
	bad := notion.Comment{ID: "c2", CreatedBy: grace, RichText: spans("broken")}
	f.comments[rootID] = []notion.Comment{good, bad}

	cs, err := newTestEngine(f).FetchComments(context.Background(), rootID)
	require.NoError(t, err)
	require.Len(t, cs, 2)
	d := cs[1]
	assert.Equal(t, "c2", d.CommentID)
	assert.Equal(t, "Unknown", d.Author.String())
	assert.Equal(t, "<load error>", d.Content)
	assert.Equal(t, "Roadmap", d.PageTitle)
	assert.True(t, d.LastRepliedAt.Equal(fixedNow))
	assert.Empty(t, d.Thread)
	assert.Empty(t, d.Mentions)
}

func TestFetchComments_DegradedReply(t *testing.T) {
	f := newFakeRemote()
	f.addPage(rootID, "Roadmap", workspace())
	c := rawComment("c1", ada, fixedNow, "x", notion.Comment{ID: "r1", CreatedTime: "yesterday"})
	f.comments[rootID] = []notion.Comment{c}

	cs, err := newTestEngine(f).FetchComments(context.Background(), rootID)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "<load error>", cs[0].Content)
}
