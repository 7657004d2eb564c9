package notion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bryan-buckman/ncv/internal/model"
)

// Parent types reported by the API.
const (
	ParentTypeDatabase  = "database_id"
	ParentTypePage      = "page_id"
	ParentTypeBlock     = "block_id"
	ParentTypeWorkspace = "workspace"
)

// Block types that denote an embedded child page.
const (
	BlockTypeChildPage = "child_page"
	blockTypeLegacy    = "page"
)

// User is a Notion user reference.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Ref converts u to the shared model.
func (u User) Ref() model.UserRef {
	return model.UserRef{ID: u.ID, Name: u.Name}
}

// Mention is the payload of a mention span.
type Mention struct {
	Type string `json:"type"`
	User *User  `json:"user,omitempty"`
}

// RichText is one span of rich text.
type RichText struct {
	Type      string `json:"type"`
	PlainText string `json:"plain_text"`
	Text      *struct {
		Content string `json:"content"`
	} `json:"text,omitempty"`
	Mention *Mention `json:"mention,omitempty"`
}

// PlainText concatenates the plain text of all spans.
func PlainText(spans []RichText) string {
	var sb strings.Builder
	for _, s := range spans {
		switch {
		case s.PlainText != "":
			sb.WriteString(s.PlainText)
		case s.Text != nil:
			sb.WriteString(s.Text.Content)
		}
	}
	return sb.String()
}

// MentionedUsers returns the users referenced by user-mention spans.
func MentionedUsers(spans []RichText) []model.UserRef {
	var users []model.UserRef
	for _, s := range spans {
		if s.Type == "mention" && s.Mention != nil && s.Mention.Type == "user" && s.Mention.User != nil {
			users = append(users, s.Mention.User.Ref())
		}
	}
	return users
}

// Parent is a reference to the container of a node.
type Parent struct {
	Type       string `json:"type"`
	DatabaseID string `json:"database_id,omitempty"`
	PageID     string `json:"page_id,omitempty"`
	BlockID    string `json:"block_id,omitempty"`
	Workspace  bool   `json:"workspace,omitempty"`
}

// ID returns the identifier of the parent, if it has one.
func (p Parent) ID() string {
	switch p.Type {
	case ParentTypeDatabase:
		return p.DatabaseID
	case ParentTypePage:
		return p.PageID
	case ParentTypeBlock:
		return p.BlockID
	}
	return ""
}

// Property is a page property. Only title properties carry a value here.
type Property struct {
	Name  string     `json:"-"`
	ID    string     `json:"id"`
	Type  string     `json:"type"`
	Title []RichText `json:"title,omitempty"`
}

// Properties holds page properties in the order the API returned them.
type Properties []Property

// UnmarshalJSON decodes the property object, keeping declaration order.
func (p *Properties) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("properties: expected object, got %v", tok)
	}
	var props Properties
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var prop Property
		if err := dec.Decode(&prop); err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}
		prop.Name = key
		props = append(props, prop)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = props
	return nil
}

// Get returns the property with the given name.
func (p Properties) Get(name string) (Property, bool) {
	for _, prop := range p {
		if prop.Name == name {
			return prop, true
		}
	}
	return Property{}, false
}

// Title resolves a display title: the conventional "title" property, then
// "Name", then the first populated property of type title.
func (p Properties) Title() string {
	for _, name := range []string{"title", "Name"} {
		if prop, ok := p.Get(name); ok {
			if t := PlainText(prop.Title); t != "" {
				return t
			}
		}
	}
	return p.FirstTitle()
}

// FirstTitle returns the first populated property of type title.
func (p Properties) FirstTitle() string {
	for _, prop := range p {
		if prop.Type != "title" {
			continue
		}
		if t := PlainText(prop.Title); t != "" {
			return t
		}
	}
	return ""
}

// Page is a page or a database record.
type Page struct {
	ID         string     `json:"id"`
	URL        string     `json:"url,omitempty"`
	Parent     Parent     `json:"parent"`
	Properties Properties `json:"properties"`
	ChildPage  *struct {
		Title string `json:"title"`
	} `json:"child_page,omitempty"`
}

// Title returns the resolved page title, or "" when none is populated.
func (p *Page) Title() string {
	if t := p.Properties.Title(); t != "" {
		return t
	}
	if p.ChildPage != nil {
		return p.ChildPage.Title
	}
	return ""
}

// Database is a collection of records.
type Database struct {
	ID     string     `json:"id"`
	URL    string     `json:"url,omitempty"`
	Parent Parent     `json:"parent"`
	Title  []RichText `json:"title"`
}

// Name returns the database title.
func (d *Database) Name() string {
	return PlainText(d.Title)
}

// Object is a node decoded by its "object" discriminator. Exactly one of Page
// and Database is set unless Kind is model.KindUnknown.
type Object struct {
	Kind     model.Kind
	Page     *Page
	Database *Database

	id  string
	url string
}

// PageObject wraps a page as an Object.
func PageObject(p *Page) Object {
	return Object{Kind: model.KindPage, Page: p, id: p.ID, url: p.URL}
}

// DatabaseObject wraps a database as an Object.
func DatabaseObject(d *Database) Object {
	return Object{Kind: model.KindDatabase, Database: d, id: d.ID, url: d.URL}
}

// UnmarshalJSON decodes the variant named by the "object" field.
func (o *Object) UnmarshalJSON(data []byte) error {
	var head struct {
		Object string `json:"object"`
		ID     string `json:"id"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	*o = Object{Kind: model.KindUnknown, id: head.ID, url: head.URL}
	switch head.Object {
	case "page":
		var p Page
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode page %s: %w", head.ID, err)
		}
		o.Kind, o.Page = model.KindPage, &p
	case "database":
		var d Database
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("decode database %s: %w", head.ID, err)
		}
		o.Kind, o.Database = model.KindDatabase, &d
	}
	return nil
}

// ID returns the object's identifier.
func (o Object) ID() string { return o.id }

// URL returns the object's notion.so URL as reported by the API.
func (o Object) URL() string { return o.url }

// Parent returns the parent reference of a page or database.
func (o Object) Parent() Parent {
	switch {
	case o.Page != nil:
		return o.Page.Parent
	case o.Database != nil:
		return o.Database.Parent
	}
	return Parent{}
}

// Title returns the variant's title, or "" when none is populated.
func (o Object) Title() string {
	switch {
	case o.Page != nil:
		return o.Page.Title()
	case o.Database != nil:
		return o.Database.Name()
	}
	return ""
}

// Block is a child block of a page.
type Block struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// IsChildPage reports whether the block embeds a child page.
func (b Block) IsChildPage() bool {
	return b.Type == BlockTypeChildPage || b.Type == blockTypeLegacy
}

// Comment is a comment as returned by the API. Discussion holds the replies
// that follow it in the same discussion.
type Comment struct {
	ID           string      `json:"id"`
	DiscussionID string      `json:"discussion_id"`
	Parent       Parent      `json:"parent"`
	CreatedTime  string      `json:"created_time"`
	CreatedBy    User        `json:"created_by"`
	RichText     []RichText  `json:"rich_text"`
	Resolved     bool        `json:"resolved,omitempty"`
	Discussion   *Discussion `json:"discussion,omitempty"`
}

// Discussion is the reply thread of a comment.
type Discussion struct {
	Comments []Comment `json:"comments"`
}

// foldDiscussions groups a flat comment list by discussion: the first comment
// of each discussion keeps its position and the rest become its replies.
// Lists that already embed discussions are returned unchanged.
func foldDiscussions(comments []Comment) []Comment {
	for _, c := range comments {
		if c.Discussion != nil {
			return comments
		}
	}
	var out []Comment
	heads := make(map[string]int)
	for _, c := range comments {
		if c.DiscussionID == "" {
			out = append(out, c)
			continue
		}
		i, ok := heads[c.DiscussionID]
		if !ok {
			heads[c.DiscussionID] = len(out)
			out = append(out, c)
			continue
		}
		if out[i].Discussion == nil {
			out[i].Discussion = &Discussion{}
		}
		out[i].Discussion.Comments = append(out[i].Discussion.Comments, c)
	}
	return out
}
