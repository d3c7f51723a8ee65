package scheduler

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/engagebot/internal/harvest"
	"github.com/xaenox/engagebot/internal/metrics"
	"github.com/xaenox/engagebot/internal/models"
)

const (
	featureCompetitor = "competitor"
	featureReplies    = "replies"
	featureRetweets   = "retweets"
	featureLikes      = "likes"
)

// accountRun holds the per-run state of one account. It is used by a single
// goroutine.
type accountRun struct {
	s      *Scheduler
	p      *models.AccountPolicy
	sess   Session
	out    *Outcome
	logger *zap.Logger
}

type filters struct {
	minLikes    int
	minRetweets int
	mediaOnly   bool
	relevance   models.RelevanceFilter
	checkAge    bool
}

func (r *accountRun) collect(ctx context.Context, feature string, open func(context.Context) (harvest.Source, error), limit int) []models.Candidate {
	src, err := open(ctx)
	if err != nil {
		r.logger.Error("Failed to open harvest source", zap.String("feature", feature), zap.Error(err))
		return nil
	}
	res, err := r.s.harvester.Harvest(ctx, src, harvest.Options{
		MaxItems:        limit,
		MaxStallScrolls: r.s.opts.MaxStallScrolls,
		ScrollDelay:     r.s.opts.ScrollDelay,
	})
	if err != nil {
		r.logger.Warn("Harvest ended early, using partial results",
			zap.String("feature", feature),
			zap.Int("collected", len(res.Candidates)),
			zap.Error(err))
	}
	r.s.recorder.Harvested(r.p.AccountID, feature, len(res.Candidates))
	return res.Candidates
}

func (r *accountRun) competitor(ctx context.Context) error {
	f := r.p.Competitor
	if !f.Enabled {
		return nil
	}
	if len(f.Profiles) == 0 {
		r.logger.Info("Competitor reposts enabled, but no competitor profiles configured")
		return nil
	}

	for _, url := range f.Profiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		candidates := r.collect(ctx, featureCompetitor, func(ctx context.Context) (harvest.Source, error) {
			return r.sess.Profile(ctx, url)
		}, f.MaxPerProfile*3)

		made := 0
		for i := range candidates {
			if made >= f.MaxPerProfile {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			c := &candidates[i]
			if !r.passes(ctx, featureCompetitor, c, filters{
				minLikes:    f.MinLikes,
				minRetweets: f.MinRetweets,
				mediaOnly:   f.MediaOnly,
				relevance:   f.Relevance,
			}) {
				continue
			}

			kind := r.chooseAction(ctx, c)
			if r.alreadyDone(featureCompetitor, kind, c) {
				continue
			}
			r.s.engine.ConfirmThread(ctx, c, r.p)

			var do func(context.Context) error
			switch kind {
			case models.ActionLike:
				do = func(ctx context.Context) error { return r.sess.Like(ctx, c.ID, c.Permalink) }
			case models.ActionRepost:
				text, ok := r.compose(ctx, featureCompetitor, kind, c, r.p.PostLLM, repostPrompt(c))
				if !ok {
					continue
				}
				do = func(ctx context.Context) error { return r.sess.Post(ctx, text, c.Media) }
			case models.ActionRetweet:
				do = func(ctx context.Context) error { return r.sess.RetweetOrQuote(ctx, c, "") }
			case models.ActionQuoteTweet:
				text, ok := r.compose(ctx, featureCompetitor, kind, c, r.p.PostLLM, quotePrompt(f.QuotePrompt, c))
				if !ok {
					continue
				}
				do = func(ctx context.Context) error { return r.sess.RetweetOrQuote(ctx, c, text) }
			default:
				r.logger.Warn("Unknown competitor interaction", zap.String("action", string(kind)))
				continue
			}

			if r.execute(ctx, featureCompetitor, kind, c, do) && kind != models.ActionLike {
				made++
			}
		}
	}
	return nil
}

// chooseAction runs the decision engine, or uses the configured default
// interaction when decision support is off and a default is set.
func (r *accountRun) chooseAction(ctx context.Context, c *models.Candidate) models.ActionKind {
	if !r.p.DecisionEnabled && r.p.Competitor.DefaultAction != "" {
		return r.p.Competitor.DefaultAction
	}
	d := r.s.engine.Decide(ctx, c, r.p)
	r.logger.Debug("Decision made",
		zap.String("candidate_id", c.ID),
		zap.String("action", string(d.Action)),
		zap.String("tier", string(d.Tier)),
		zap.Float64("relevance", d.Relevance),
		zap.String("sentiment", string(d.Sentiment)))
	return d.Action
}

func (r *accountRun) replies(ctx context.Context) error {
	f := r.p.Replies
	if !f.Enabled {
		return nil
	}
	if len(r.p.Keywords) == 0 {
		r.logger.Info("Keyword replies enabled, but no target keywords configured")
		return nil
	}

	for _, keyword := range r.p.Keywords {
		if err := ctx.Err(); err != nil {
			return err
		}
		candidates := r.collect(ctx, featureReplies, func(ctx context.Context) (harvest.Source, error) {
			return r.sess.Search(ctx, keyword)
		}, f.MaxPerKeyword*2)

		made := 0
		for i := range candidates {
			if made >= f.MaxPerKeyword {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			c := &candidates[i]
			if r.alreadyDone(featureReplies, models.ActionReply, c) {
				continue
			}
			if !r.passes(ctx, featureReplies, c, filters{relevance: f.Relevance, checkAge: true}) {
				continue
			}
			r.s.engine.ConfirmThread(ctx, c, r.p)

			text, ok := r.compose(ctx, featureReplies, models.ActionReply, c, r.p.ReplyLLM, replyPrompt(c))
			if !ok {
				continue
			}
			text = capText(text, maxReplyChars)
			if r.execute(ctx, featureReplies, models.ActionReply, c, func(ctx context.Context) error {
				return r.sess.Reply(ctx, c, text)
			}) {
				made++
			}
		}
		r.logger.Info("Finished processing keyword for replies", zap.String("keyword", keyword), zap.Int("replies", made))
	}
	return nil
}

func (r *accountRun) retweets(ctx context.Context) error {
	f := r.p.Retweets
	if !f.Enabled || len(r.p.Keywords) == 0 {
		return nil
	}

	for _, keyword := range r.p.Keywords {
		if err := ctx.Err(); err != nil {
			return err
		}
		candidates := r.collect(ctx, featureRetweets, func(ctx context.Context) (harvest.Source, error) {
			return r.sess.Search(ctx, keyword)
		}, max(5, f.MaxPerKeyword*3))

		made := 0
		for i := range candidates {
			if made >= f.MaxPerKeyword {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			c := &candidates[i]
			if r.alreadyDone(featureRetweets, models.ActionRetweet, c) {
				continue
			}
			if !r.passes(ctx, featureRetweets, c, filters{relevance: f.Relevance}) {
				continue
			}
			if r.execute(ctx, featureRetweets, models.ActionRetweet, c, func(ctx context.Context) error {
				return r.sess.RetweetOrQuote(ctx, c, "")
			}) {
				made++
			}
		}
	}
	return nil
}

func (r *accountRun) likes(ctx context.Context) error {
	f := r.p.Likes
	if !f.Enabled {
		return nil
	}
	keywords := r.p.LikeKeywords()
	if len(keywords) == 0 {
		r.logger.Info("Liking enabled, but no keywords configured")
		return nil
	}

	done := 0
	for _, keyword := range keywords {
		if done >= f.MaxPerRun {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		candidates := r.collect(ctx, featureLikes, func(ctx context.Context) (harvest.Source, error) {
			return r.sess.Search(ctx, keyword)
		}, f.MaxPerRun*2)

		for i := range candidates {
			if done >= f.MaxPerRun {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			c := &candidates[i]
			if r.alreadyDone(featureLikes, models.ActionLike, c) {
				continue
			}
			if !r.passes(ctx, featureLikes, c, filters{relevance: f.Relevance}) {
				continue
			}
			if r.execute(ctx, featureLikes, models.ActionLike, c, func(ctx context.Context) error {
				return r.sess.Like(ctx, c.ID, c.Permalink)
			}) {
				done++
			}
		}
	}
	return nil
}

// alreadyDone reports whether the ledger already holds this action.
func (r *accountRun) alreadyDone(feature string, kind models.ActionKind, c *models.Candidate) bool {
	key := models.NewActionKey(kind, r.p.AccountID, c.ID)
	if !r.s.ledger.Contains(key) {
		return false
	}
	r.logger.Info("Action already processed, skipping",
		zap.String("feature", feature),
		zap.String("action_key", key.String()))
	r.s.recorder.Action(r.p.AccountID, kind, metrics.OutcomeDuplicate)
	return true
}

// passes applies the candidate filters in order of cost; the relevance
// filter may call a model so it runs last.
func (r *accountRun) passes(ctx context.Context, feature string, c *models.Candidate, f filters) bool {
	skip := func(reason string, fields ...zap.Field) bool {
		r.logger.Debug("Skipping candidate",
			append([]zap.Field{zap.String("feature", feature), zap.String("candidate_id", c.ID), zap.String("reason", reason)}, fields...)...)
		return false
	}

	if r.p.AvoidOwnPosts && isOwnPost(r.p.AccountID, c.AuthorHandle) {
		return skip("own post")
	}
	if f.checkAge && r.p.Replies.MaxAge > 0 {
		if age, ok := c.Age(r.s.opts.Now()); ok && age > r.p.Replies.MaxAge {
			return skip("too old", zap.Duration("age", age))
		}
	}
	if f.mediaOnly && !c.HasMedia() {
		return skip("no media")
	}
	if c.Likes < f.minLikes {
		return skip("too few likes", zap.Int("likes", c.Likes))
	}
	if c.Retweets < f.minRetweets {
		return skip("too few retweets", zap.Int("retweets", c.Retweets))
	}
	if f.relevance.Enabled {
		if rel := r.s.engine.ScoreRelevance(ctx, c, r.p.Keywords, r.p); rel < f.relevance.Min {
			return skip("low relevance", zap.Float64("relevance", rel), zap.Float64("min", f.relevance.Min))
		}
	}
	return true
}

func isOwnPost(accountID, handle string) bool {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	return handle != "" && strings.EqualFold(handle, strings.TrimPrefix(accountID, "@"))
}

// execute runs one action under a context that survives run cancellation,
// records it in the ledger on success and then paces the account.
func (r *accountRun) execute(ctx context.Context, feature string, kind models.ActionKind, c *models.Candidate, do func(context.Context) error) bool {
	key := models.NewActionKey(kind, r.p.AccountID, c.ID)
	log := r.logger.With(
		zap.String("feature", feature),
		zap.String("candidate_id", c.ID),
		zap.String("action", string(kind)))
	actionCtx := context.WithoutCancel(ctx)

	if err := r.safely(actionCtx, do); err != nil {
		r.out.Failures++
		log.Error("Action failed", zap.Error(err))
		r.s.recorder.Action(r.p.AccountID, kind, metrics.OutcomeFailed)
		r.s.recorder.Event(r.p.AccountID, string(kind), "failure",
			zap.String("source", feature), zap.String("candidate_id", c.ID), zap.Error(err))
		return false
	}

	r.out.Actions[kind]++
	r.s.recorder.Action(r.p.AccountID, kind, metrics.OutcomeSuccess)
	r.s.recorder.Event(r.p.AccountID, string(kind), "success",
		zap.String("source", feature), zap.String("candidate_id", c.ID))

	meta := map[string]string{"account": r.p.AccountID, "feature": feature}
	if err := r.s.ledger.Record(actionCtx, key, r.s.opts.Now(), meta); err != nil {
		r.out.LedgerErrors++
		log.Error("Failed to record action in ledger", zap.String("action_key", key.String()), zap.Error(err))
		r.s.recorder.Event(r.p.AccountID, "ledger_write", "failure",
			zap.String("action_key", key.String()), zap.Error(err))
	}

	lo, hi := r.p.Pacing.MinDelay, r.p.Pacing.MaxDelay
	if kind == models.ActionLike {
		lo, hi = lo/2, hi/2
	}
	if err := r.s.opts.Sleep(ctx, jitter(lo, hi)); err != nil {
		log.Debug("Pacing interrupted", zap.Error(err))
	}
	return true
}

// safely converts a panicking collaborator into an error.
func (r *accountRun) safely(ctx context.Context, do func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("action panicked: %v", p)
		}
	}()
	return do(ctx)
}

// compose generates text for an action. A failure skips the candidate.
func (r *accountRun) compose(ctx context.Context, feature string, kind models.ActionKind, c *models.Candidate, settings models.LLMSettings, prompt string) (string, bool) {
	text, err := r.s.generate(ctx, settings, prompt)
	if err != nil {
		r.logger.Error("Failed to generate text, skipping candidate",
			zap.String("feature", feature),
			zap.String("candidate_id", c.ID),
			zap.String("action", string(kind)),
			zap.Error(err))
		r.s.recorder.Action(r.p.AccountID, kind, metrics.OutcomeSkipped)
		return "", false
	}
	return text, true
}
