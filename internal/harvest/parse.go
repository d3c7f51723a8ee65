package harvest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xaenox/engagebot/internal/models"
)

// Counter names used in RawItem.Counts.
const (
	CountReplies  = "reply"
	CountRetweets = "retweet"
	CountLikes    = "like"
	CountViews    = "views"
)

// RawItem is one unparsed post card as the page source sees it.
type RawItem struct {
	Href      string            `json:"href"`
	TextParts []string          `json:"text_parts"`
	Handle    string            `json:"handle"`
	Name      string            `json:"name"`
	Datetime  string            `json:"datetime"`
	Counts    map[string]string `json:"counts"`
	MediaSrcs []string          `json:"media_srcs"`
	Hashtags  []string          `json:"hashtags"`
	Mentions  []string          `json:"mentions"`
	Verified  bool              `json:"verified"`
}

var threadMarkers = []*regexp.Regexp{
	regexp.MustCompile(`\(\d+/\d+\)`),
	regexp.MustCompile(`\b\d+/\d+\b`),
	regexp.MustCompile(`(?i)\bthread\b`),
	regexp.MustCompile("\U0001F9F5"),
	regexp.MustCompile(`(?im)^\s*(?:1|a|i)[.)]\s`),
}

// LooksLikeThread reports whether text carries a thread marker such as
// "(1/5)", "2/7", the word thread, the thread glyph, or a list prefix.
func LooksLikeThread(text string) bool {
	for _, re := range threadMarkers {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Parse turns a raw card into a Candidate. Items without a status id or
// without text are dropped.
func Parse(raw RawItem) (models.Candidate, bool) {
	text := strings.TrimSpace(strings.Join(raw.TextParts, ""))
	if text == "" {
		return models.Candidate{}, false
	}
	id := StatusID(raw.Href)
	if id == "" {
		return models.Candidate{}, false
	}

	c := models.Candidate{
		ID:                id,
		AuthorHandle:      strings.TrimPrefix(strings.TrimSpace(raw.Handle), "@"),
		AuthorName:        strings.TrimSpace(raw.Name),
		Verified:          raw.Verified,
		Text:              text,
		Replies:           ParseCount(raw.Counts[CountReplies]),
		Retweets:          ParseCount(raw.Counts[CountRetweets]),
		Likes:             ParseCount(raw.Counts[CountLikes]),
		Views:             ParseCount(raw.Counts[CountViews]),
		Permalink:         raw.Href,
		Media:             dedupe(raw.MediaSrcs),
		Hashtags:          raw.Hashtags,
		Mentions:          raw.Mentions,
		IsThreadCandidate: LooksLikeThread(text),
	}
	if raw.Datetime != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw.Datetime); err == nil {
			ts = ts.UTC()
			c.CreatedAt = &ts
		}
	}
	return c, true
}

// StatusID extracts the numeric post id from a permalink such as
// https://x.com/user/status/123?s=20.
func StatusID(href string) string {
	_, after, ok := strings.Cut(href, "/status/")
	if !ok {
		return ""
	}
	if i := strings.IndexAny(after, "/?#"); i >= 0 {
		after = after[:i]
	}
	return after
}

// ParseCount reads engagement counters like "1.2K", "3M", or "1,204".
// Anything unreadable counts as zero.
func ParseCount(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult = 1_000
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult = 1_000_000
		s = s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int(f * mult)
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
