package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"github.com/xaenox/engagebot/internal/harvest"
)

const selTweetArticle = `article[data-testid="tweet"]`

// extractCards maps every rendered post card to a harvest.RawItem.
const extractCards = `() => {
	const text = (el) => (el && el.textContent ? el.textContent.trim() : "");
	const counter = (card, id) => text(card.querySelector('[data-testid="' + id + '"] [data-testid="app-text-transition-container"]'));
	return Array.from(document.querySelectorAll('article[data-testid="tweet"]')).map((card) => {
		const link = card.querySelector('a[href*="/status/"] time');
		const anchor = link ? link.closest("a") : card.querySelector('a[href*="/status/"]');
		const user = card.querySelector('[data-testid="User-Name"]');
		const handle = user ? Array.from(user.querySelectorAll("span")).map(text).find((t) => t.startsWith("@")) : "";
		const body = card.querySelector('[data-testid="tweetText"]');
		const views = card.querySelector('a[href*="/analytics"] [data-testid="app-text-transition-container"]');
		return {
			href: anchor ? anchor.href : "",
			text_parts: body && body.innerText ? [body.innerText] : [],
			handle: handle || "",
			name: user ? text(user.querySelector("span span")) : "",
			datetime: link ? link.getAttribute("datetime") || "" : "",
			counts: {
				reply: counter(card, "reply"),
				retweet: counter(card, "retweet"),
				like: counter(card, "like"),
				views: text(views),
			},
			media_srcs: Array.from(card.querySelectorAll('[data-testid="tweetPhoto"] img, [data-testid*="videoPlayer"] video'))
				.map((m) => m.currentSrc || m.src || m.poster || "").filter(Boolean),
			hashtags: body ? Array.from(body.querySelectorAll('a[href*="/hashtag/"]')).map(text) : [],
			mentions: body ? Array.from(body.querySelectorAll("a")).map(text).filter((t) => t.startsWith("@")) : [],
			verified: !!card.querySelector('svg[data-testid="icon-verified"]'),
		};
	});
}`

const scrollHeight = `() => document.body.scrollHeight`

const scrollDown = `() => { window.scrollBy(0, window.innerHeight * 2); return document.body.scrollHeight; }`

// PageSource reads post cards from the page currently loaded in a session.
type PageSource struct {
	page   *rod.Page
	settle time.Duration
	logger *zap.Logger
}

func (p *PageSource) CurrentBatch(ctx context.Context) ([]harvest.RawItem, error) {
	res, err := p.page.Context(ctx).Eval(extractCards)
	if err != nil {
		return nil, fmt.Errorf("extract cards: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode cards: %w", err)
	}
	var items []harvest.RawItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode cards: %w", err)
	}
	return items, nil
}

// Advance scrolls down and reports whether the document grew within the
// settle period.
func (p *PageSource) Advance(ctx context.Context) (bool, error) {
	page := p.page.Context(ctx)
	res, err := page.Eval(scrollDown)
	if err != nil {
		return false, fmt.Errorf("scroll: %w", err)
	}
	before := res.Value.Int()

	const polls = 4
	for i := 0; i < polls; i++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(p.settle / polls):
		}
		res, err := page.Eval(scrollHeight)
		if err != nil {
			return false, fmt.Errorf("read scroll height: %w", err)
		}
		if res.Value.Int() > before {
			return true, nil
		}
	}
	p.logger.Debug("Scroll height stopped growing", zap.Int("height", before))
	return false, nil
}
