// Package model defines shared data structures.
package model

import (
	"strings"
	"time"
)

// Kind is the object kind of a Notion node.
type Kind string

const (
	KindPage     Kind = "page"
	KindDatabase Kind = "database"
	KindUnknown  Kind = "unknown"
)

// ParentKind is the kind of container a node lives in.
type ParentKind string

const (
	ParentDatabase  ParentKind = "database"
	ParentPage      ParentKind = "page"
	ParentWorkspace ParentKind = "workspace"
)

// UserRef identifies a Notion user. Either field may be empty.
type UserRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// String returns the display name, falling back to the user ID.
func (u UserRef) String() string {
	if u.Name != "" {
		return u.Name
	}
	if u.ID != "" {
		return u.ID
	}
	return "Unknown"
}

// Matches reports whether u and other denote the same user. When both sides
// carry an ID only the IDs are compared; otherwise names are compared
// case-insensitively.
func (u UserRef) Matches(other UserRef) bool {
	if u.ID != "" && other.ID != "" {
		return u.ID == other.ID
	}
	return u.Name != "" && strings.EqualFold(u.Name, other.Name)
}

// IsZero reports whether neither ID nor Name is set.
func (u UserRef) IsZero() bool {
	return u.ID == "" && u.Name == ""
}

// ThreadEntry is one reply within a discussion.
type ThreadEntry struct {
	CommentID string    `json:"commentId"`
	Author    UserRef   `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Mentions  []UserRef `json:"mentions"`
}

// Comment is a top-level comment with its reply thread.
type Comment struct {
	CommentID     string        `json:"commentId"`
	PageID        string        `json:"pageId"`
	PageTitle     string        `json:"pageTitle"`
	Author        UserRef       `json:"author"`
	Content       string        `json:"content"`
	IsResolved    bool          `json:"isResolved"`
	LastRepliedAt time.Time     `json:"lastRepliedAt"`
	Mentions      []UserRef     `json:"mentions"`
	Thread        []ThreadEntry `json:"thread"`
}

// CollectionInfo describes the collection a record belongs to.
type CollectionInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Access bool   `json:"access"`
}

// Diagnosis reports accessibility and kind of a node.
type Diagnosis struct {
	Access         bool            `json:"access"`
	Kind           Kind            `json:"kind"`
	ParentKind     ParentKind      `json:"parentKind,omitempty"`
	ParentID       string          `json:"parentId,omitempty"`
	Title          string          `json:"title,omitempty"`
	Error          string          `json:"error,omitempty"`
	CollectionInfo *CollectionInfo `json:"collectionInfo,omitempty"`
	NormalizedID   string          `json:"normalizedId"`
}

// Options controls an aggregation request.
type Options struct {
	IncludeSubPages   bool
	FilterUnresolved  bool
	FilterNoReplyDays int
	FilterMyComments  bool
}

// AggregateResult is the outcome of aggregating comments under a root.
type AggregateResult struct {
	Comments            []Comment `json:"comments"`
	HasPermissionIssues bool      `json:"hasPermissionIssues"`
	NotFoundPageIDs     []string  `json:"notFoundPageIds"`
	IsDatabase          bool      `json:"isDatabase"`
	DatabaseName        string    `json:"databaseName,omitempty"`
}

// RootDenied reports whether the root itself could not be read and nothing
// was collected. A database root was read by definition, even when its own
// comments were not.
func (r *AggregateResult) RootDenied(rootID string) bool {
	if r.IsDatabase || len(r.Comments) > 0 {
		return false
	}
	for _, id := range r.NotFoundPageIDs {
		if id == rootID {
			return true
		}
	}
	return false
}

// SearchResult is a candidate root returned by search.
type SearchResult struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Session is a signed-in user's Notion credential.
type Session struct {
	ID            string
	AccessToken   string
	User          UserRef
	WorkspaceName string
	CreatedAt     time.Time
}
