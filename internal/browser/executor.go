package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/xaenox/engagebot/internal/models"
)

const (
	selFirstArticle   = `article[data-testid="tweet"]`
	selLike           = `article[data-testid="tweet"] [data-testid="like"]`
	selUnlike         = `article[data-testid="tweet"] [data-testid="unlike"]`
	selReply          = `article[data-testid="tweet"] [data-testid="reply"]`
	selRetweet        = `article[data-testid="tweet"] [data-testid="retweet"]`
	selRetweetConfirm = `[data-testid="retweetConfirm"]`
	selQuoteOption    = `[data-testid="Dropdown"] a[href*="/compose/"]`
	selNewPost        = `[data-testid="SideNav_NewTweet_Button"]`
	selTextarea       = `[data-testid="tweetTextarea_0"]`
	selFileInput      = `input[data-testid="fileInput"]`
	selSubmit         = `[data-testid="layers"] [data-testid="tweetButton"], [data-testid="tweetButton"]`
)

// act runs fn against the page with the action timeout applied.
func (s *Session) act(ctx context.Context, name string, fn func(page *rod.Page) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()
	if err := fn(s.page.Context(ctx)); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func click(page *rod.Page, selector string) error {
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func typeText(page *rod.Page, text string) error {
	el, err := page.Element(selTextarea)
	if err != nil {
		return fmt.Errorf("find composer: %w", err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("type text: %w", err)
	}
	return nil
}

// submit clicks the post button and waits for the composer to close.
func submit(page *rod.Page) error {
	composer, err := page.Element(selTextarea)
	if err != nil {
		return fmt.Errorf("find composer: %w", err)
	}
	if err := click(page, selSubmit); err != nil {
		return err
	}
	if err := composer.WaitInvisible(); err != nil {
		return fmt.Errorf("composer did not close: %w", err)
	}
	return nil
}

func (s *Session) open(ctx context.Context, permalink string) error {
	if permalink == "" {
		return fmt.Errorf("candidate has no permalink")
	}
	if err := s.navigate(ctx, permalink); err != nil {
		return err
	}
	if _, err := s.page.Context(ctx).Timeout(s.cfg.NavigationTimeout).Element(selFirstArticle); err != nil {
		return fmt.Errorf("post did not render: %w", err)
	}
	return nil
}

func (s *Session) Like(ctx context.Context, candidateID, permalink string) error {
	if err := s.open(ctx, permalink); err != nil {
		return err
	}
	return s.act(ctx, "like", func(page *rod.Page) error {
		if liked, _, err := page.Has(selUnlike); err == nil && liked {
			s.logger.Debug("Post already liked", zap.String("candidate_id", candidateID))
			return nil
		}
		if err := click(page, selLike); err != nil {
			return err
		}
		if _, err := page.Element(selUnlike); err != nil {
			return fmt.Errorf("like not confirmed: %w", err)
		}
		return nil
	})
}

func (s *Session) Post(ctx context.Context, text string, media []string) error {
	if err := s.navigate(ctx, s.cfg.BaseURL+"/home"); err != nil {
		return err
	}

	var files []string
	if len(media) > 0 {
		dir, err := os.MkdirTemp("", "engagebot-media-")
		if err != nil {
			return fmt.Errorf("create media dir: %w", err)
		}
		defer os.RemoveAll(dir)
		files = downloadMedia(ctx, s.logger, media, dir)
	}

	return s.act(ctx, "post", func(page *rod.Page) error {
		if err := click(page, selNewPost); err != nil {
			return err
		}
		if err := typeText(page, text); err != nil {
			return err
		}
		if len(files) > 0 {
			input, err := page.Element(selFileInput)
			if err != nil {
				return fmt.Errorf("find media input: %w", err)
			}
			if err := input.SetFiles(files); err != nil {
				return fmt.Errorf("attach media: %w", err)
			}
			s.logger.Debug("Media attached", zap.Strings("files", baseNames(files)))
		}
		return submit(page)
	})
}

func (s *Session) Reply(ctx context.Context, c *models.Candidate, text string) error {
	if err := s.open(ctx, c.Permalink); err != nil {
		return err
	}
	return s.act(ctx, "reply", func(page *rod.Page) error {
		if err := click(page, selReply); err != nil {
			return err
		}
		if err := typeText(page, text); err != nil {
			return err
		}
		return submit(page)
	})
}

// RetweetOrQuote retweets c, or quotes it when quoteText is not empty.
func (s *Session) RetweetOrQuote(ctx context.Context, c *models.Candidate, quoteText string) error {
	if err := s.open(ctx, c.Permalink); err != nil {
		return err
	}
	if quoteText == "" {
		return s.act(ctx, "retweet", func(page *rod.Page) error {
			if err := click(page, selRetweet); err != nil {
				return err
			}
			return click(page, selRetweetConfirm)
		})
	}
	return s.act(ctx, "quote", func(page *rod.Page) error {
		if err := click(page, selRetweet); err != nil {
			return err
		}
		if err := click(page, selQuoteOption); err != nil {
			return err
		}
		if err := typeText(page, quoteText); err != nil {
			return err
		}
		return submit(page)
	})
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}
