// Package filter narrows aggregated comment lists. All functions are pure and
// leave their input untouched.
package filter

import (
	"time"

	"github.com/bryan-buckman/ncv/internal/model"
)

// Unresolved keeps comments that are not resolved.
func Unresolved(cs []model.Comment) []model.Comment {
	out := make([]model.Comment, 0, len(cs))
	for _, c := range cs {
		if !c.IsResolved {
			out = append(out, c)
		}
	}
	return out
}

// StaleSince keeps comments whose last reply is older than days before now.
// days <= 0 returns cs unchanged.
func StaleSince(cs []model.Comment, days int, now time.Time) []model.Comment {
	if days <= 0 {
		return cs
	}
	cutoff := now.AddDate(0, 0, -days)
	out := make([]model.Comment, 0, len(cs))
	for _, c := range cs {
		if c.LastRepliedAt.Before(cutoff) {
			out = append(out, c)
		}
	}
	return out
}

// MentionsOrParticipates keeps comments that mention user or whose thread has
// a reply by user. Each comment appears at most once, in input order.
func MentionsOrParticipates(cs []model.Comment, user model.UserRef) []model.Comment {
	out := make([]model.Comment, 0)
	if user.IsZero() {
		return out
	}
	seen := make(map[string]bool)
	for _, c := range cs {
		if seen[c.CommentID] {
			continue
		}
		if mentions(c, user) || participates(c, user) {
			seen[c.CommentID] = true
			out = append(out, c)
		}
	}
	return out
}

func mentions(c model.Comment, user model.UserRef) bool {
	for _, m := range c.Mentions {
		if m.Matches(user) {
			return true
		}
	}
	return false
}

func participates(c model.Comment, user model.UserRef) bool {
	for _, r := range c.Thread {
		if r.Author.Matches(user) {
			return true
		}
	}
	return false
}

// Apply runs the filters selected by opts: unresolved, then stale, then
// mentions-or-participates for user.
func Apply(cs []model.Comment, opts model.Options, user model.UserRef, now time.Time) []model.Comment {
	out := cs
	if opts.FilterUnresolved {
		out = Unresolved(out)
	}
	out = StaleSince(out, opts.FilterNoReplyDays, now)
	if opts.FilterMyComments && !user.IsZero() {
		out = MentionsOrParticipates(out, user)
	}
	if out == nil {
		out = []model.Comment{}
	}
	return out
}
