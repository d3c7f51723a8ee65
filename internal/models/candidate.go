package models

import "time"

// Candidate is a harvested post eligible for scoring and action
type Candidate struct {
	ID           string     `json:"id"`
	AuthorHandle string     `json:"author_handle"`
	AuthorName   string     `json:"author_name,omitempty"`
	Verified     bool       `json:"verified"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	Text         string     `json:"text"`
	Replies      int        `json:"replies"`
	Retweets     int        `json:"retweets"`
	Likes        int        `json:"likes"`
	Views        int        `json:"views"`
	Permalink    string     `json:"permalink,omitempty"`
	Media        []string   `json:"media,omitempty"`
	Hashtags     []string   `json:"hashtags,omitempty"`
	Mentions     []string   `json:"mentions,omitempty"`

	IsThreadCandidate bool `json:"is_thread_candidate"`
	IsConfirmedThread bool `json:"is_confirmed_thread"`
}

// HasMedia reports whether the post embeds at least one image or video.
func (c *Candidate) HasMedia() bool {
	return len(c.Media) > 0
}

// Age returns how long ago the post was created. ok is false when the
// creation time is unknown.
func (c *Candidate) Age(now time.Time) (age time.Duration, ok bool) {
	if c.CreatedAt == nil {
		return 0, false
	}
	return now.Sub(*c.CreatedAt), true
}

// HandleOrDefault is used when rendering prompts.
func (c *Candidate) HandleOrDefault() string {
	if c.AuthorHandle == "" {
		return "a user"
	}
	return c.AuthorHandle
}
