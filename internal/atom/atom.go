// Package atom exports aggregated comments as an Atom 1.0 feed.
package atom

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bryan-buckman/ncv/internal/model"
	"github.com/bryan-buckman/ncv/internal/notion"
)

const namespace = "http://www.w3.org/2005/Atom"

// Feed represents the root of an Atom document.
type Feed struct {
	XMLName xml.Name `xml:"feed"`
	Xmlns   string   `xml:"xmlns,attr"`
	ID      string   `xml:"id"`
	Title   string   `xml:"title"`
	Updated string   `xml:"updated"`
	Links   []Link   `xml:"link,omitempty"`
	Entries []Entry  `xml:"entry"`
}

// Link is an Atom link element.
type Link struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
}

// Person is an Atom author.
type Person struct {
	Name string `xml:"name"`
}

// Text is an Atom text construct.
type Text struct {
	Type  string `xml:"type,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Category tags an entry.
type Category struct {
	Term string `xml:"term,attr"`
}

// Entry is one top-level comment.
type Entry struct {
	ID         string     `xml:"id"`
	Title      string     `xml:"title"`
	Updated    string     `xml:"updated"`
	Links      []Link     `xml:"link"`
	Author     Person     `xml:"author"`
	Categories []Category `xml:"category,omitempty"`
	Content    Text       `xml:"content"`
}

// Export generates an Atom feed with one entry per comment. Entries keep the
// order of cs. now is used for the feed timestamp when cs is empty and for
// the relative reply ages in entry bodies.
func Export(title, selfURL string, cs []model.Comment, now time.Time) ([]byte, error) {
	doc := Feed{
		Xmlns:   namespace,
		ID:      selfURL,
		Title:   title,
		Updated: feedUpdated(cs, now).UTC().Format(time.RFC3339),
		Entries: make([]Entry, 0, len(cs)),
	}
	if doc.ID == "" {
		doc.ID = "urn:ncv:comments"
	} else {
		doc.Links = []Link{{Href: selfURL, Rel: "self"}}
	}

	for _, c := range cs {
		doc.Entries = append(doc.Entries, entry(c, now))
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode atom: %w", err)
	}
	return append([]byte(xml.Header), output...), nil
}

func feedUpdated(cs []model.Comment, now time.Time) time.Time {
	if len(cs) == 0 {
		return now
	}
	var latest time.Time
	for _, c := range cs {
		if c.LastRepliedAt.After(latest) {
			latest = c.LastRepliedAt
		}
	}
	return latest
}

func entry(c model.Comment, now time.Time) Entry {
	state := "open"
	if c.IsResolved {
		state = "resolved"
	}
	return Entry{
		ID:         "urn:notion:comment:" + c.CommentID,
		Title:      fmt.Sprintf("%s on %s", c.Author, c.PageTitle),
		Updated:    c.LastRepliedAt.UTC().Format(time.RFC3339),
		Links:      []Link{{Href: notion.PageURL(c.PageID), Rel: "alternate"}},
		Author:     Person{Name: c.Author.String()},
		Categories: []Category{{Term: state}},
		Content:    Text{Type: "text", Value: body(c, now)},
	}
}

func body(c model.Comment, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(c.Content)
	for _, r := range c.Thread {
		fmt.Fprintf(&sb, "\n\n%s: %s", r.Author, r.Content)
	}
	switch n := len(c.Thread); n {
	case 0:
		fmt.Fprintf(&sb, "\n\nNo replies, posted %s.", humanize.RelTime(c.LastRepliedAt, now, "ago", "from now"))
	default:
		fmt.Fprintf(&sb, "\n\n%s, last %s.", plural(n, "reply", "replies"), humanize.RelTime(c.LastRepliedAt, now, "ago", "from now"))
	}
	return sb.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}
