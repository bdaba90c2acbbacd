package filter

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"skygent.dev/skygent/internal/bsky"
	"skygent.dev/skygent/internal/errs"
)

// LinkChecker is the collaborator HasValidLinks consults. Implementations
// typically issue a HEAD request per link; the credentials/rate-limit
// collaborators (A5/A6) sit behind whatever concrete implementation is wired
// at the composition root.
type LinkChecker interface {
	AllValid(ctx context.Context, links []string) (bool, error)
}

// TrendingSource is the collaborator Trending consults to decide whether a
// tag is currently trending.
type TrendingSource interface {
	IsTrending(ctx context.Context, tag string) (bool, error)
}

// Collaborators bundles the effectful atoms' live dependencies. A nil field
// means the corresponding atom always fails with a wrapped error, which is
// then routed through the atom's ErrorPolicy like any other evaluation failure.
type Collaborators struct {
	Links    LinkChecker
	Trending TrendingSource
}

// Predicate is a compiled FilterExpr ready for repeated evaluation.
type Predicate struct {
	expr   *Expr
	collab Collaborators
}

// Compile validates expr (regex syntax, ErrorPolicy shape, non-nil required
// children) and returns a Predicate bound to the given collaborators.
// Compilation never evaluates an effectful atom; it only checks that the
// expression is well-formed.
func Compile(expr *Expr, collab Collaborators) (*Predicate, error) {
	if expr == nil {
		return nil, errs.NewFilterCompileError("expression is nil", nil)
	}
	if err := validate(expr); err != nil {
		return nil, errs.NewFilterCompileError("invalid filter expression", err)
	}
	return &Predicate{expr: expr, collab: collab}, nil
}

// validate recursively checks structural invariants and that any regex
// pattern is syntactically valid. Compiled regexps are kept in the
// package-level regex cache (filled here by compileRegex), not in the
// Predicate, so Predicate stays cheap to copy.
func validate(e *Expr) error {
	switch e.Kind {
	case KindAll, KindNone, KindIsReply, KindIsQuote, KindIsRepost, KindIsOriginal,
		KindHasImages, KindHasAltText, KindNoAltText, KindHasVideo, KindHasLinks,
		KindHasMedia, KindHasEmbed:
		return nil

	case KindAuthor, KindHashtag:
		if e.Text == "" {
			return fmt.Errorf("%s requires a non-empty value", e.Kind)
		}
		return nil

	case KindAuthorIn, KindHashtagIn, KindLanguage:
		if len(e.Texts) == 0 {
			return fmt.Errorf("%s requires at least one value", e.Kind)
		}
		return nil

	case KindContains, KindAltText, KindLinkContains:
		if e.Text == "" {
			return fmt.Errorf("%s requires a non-empty value", e.Kind)
		}
		return nil

	case KindRegex:
		if len(e.Texts) == 0 {
			return fmt.Errorf("regex requires at least one pattern")
		}
		for _, p := range e.Texts {
			if _, err := compileRegex(p, e.Flags); err != nil {
				return err
			}
		}
		return nil

	case KindAltTextRegex, KindLinkRegex:
		if _, err := compileRegex(e.Pattern, e.Flags); err != nil {
			return err
		}
		return nil

	case KindDateRange:
		if e.Start == nil || e.End == nil {
			return fmt.Errorf("dateRange requires both start and end")
		}
		if e.End.Before(*e.Start) {
			return fmt.Errorf("dateRange end precedes start")
		}
		return nil

	case KindEngagement:
		if e.MinLikes == nil && e.MinReposts == nil && e.MinReplies == nil {
			return fmt.Errorf("engagement requires at least one threshold")
		}
		return nil

	case KindMinImages:
		if e.N < 0 {
			return fmt.Errorf("minImages requires n >= 0")
		}
		return nil

	case KindHasValidLinks:
		if e.OnError == nil || !e.OnError.Validate() {
			return fmt.Errorf("hasValidLinks requires a valid error policy")
		}
		return nil

	case KindTrending:
		if e.Text == "" {
			return fmt.Errorf("trending requires a tag")
		}
		if e.OnError == nil || !e.OnError.Validate() {
			return fmt.Errorf("trending requires a valid error policy")
		}
		return nil

	case KindAnd, KindOr:
		if e.Left == nil || e.Right == nil {
			return fmt.Errorf("%s requires both operands", e.Kind)
		}
		if err := validate(e.Left); err != nil {
			return err
		}
		return validate(e.Right)

	case KindNot:
		if e.Child == nil {
			return fmt.Errorf("not requires a child expression")
		}
		return validate(e.Child)

	default:
		return fmt.Errorf("unknown filter kind %q", e.Kind)
	}
}

var (
	regexCacheMu sync.Mutex
	regexCache   = map[string]*regexp.Regexp{}
)

// compileRegex compiles pattern with optional flags ("i" for
// case-insensitive), caching by "flags/pattern" since the same pattern is
// typically compiled once per process and evaluated many times.
func compileRegex(pattern, flags string) (*regexp.Regexp, error) {
	key := flags + "\x00" + pattern
	regexCacheMu.Lock()
	if re, ok := regexCache[key]; ok {
		regexCacheMu.Unlock()
		return re, nil
	}
	regexCacheMu.Unlock()

	expr := pattern
	if strings.Contains(flags, "i") {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}

	regexCacheMu.Lock()
	regexCache[key] = re
	regexCacheMu.Unlock()
	return re, nil
}

// Meta carries metadata produced during evaluation, currently limited to
// whether any effectful atom was consulted. Future fields can be added
// without breaking callers of EvalWithMeta.
type Meta struct {
	ConsultedEffectful bool
}

// Eval reports whether post matches the predicate. Effectful atoms are
// evaluated with a background context; use EvalWithContext to control
// cancellation.
func (p *Predicate) Eval(post *bsky.Post) (bool, error) {
	return p.EvalWithContext(context.Background(), post)
}

// EvalWithContext reports whether post matches the predicate, honoring ctx
// for any effectful atom's upstream call.
func (p *Predicate) EvalWithContext(ctx context.Context, post *bsky.Post) (bool, error) {
	ok, _, err := p.eval(ctx, p.expr, post)
	return ok, err
}

// EvalWithMeta is like EvalWithContext but also reports evaluation metadata.
func (p *Predicate) EvalWithMeta(ctx context.Context, post *bsky.Post) (bool, Meta, error) {
	return p.eval(ctx, p.expr, post)
}

// EvalBatch evaluates the predicate over posts with bounded concurrency,
// preserving input order in the result slice. concurrency <= 0 means
// unbounded (limited only by len(posts)).
func (p *Predicate) EvalBatch(ctx context.Context, posts []*bsky.Post, concurrency int) ([]bool, error) {
	if concurrency <= 0 || concurrency > len(posts) {
		concurrency = len(posts)
	}
	if concurrency == 0 {
		return nil, nil
	}

	results := make([]bool, len(posts))
	errsOut := make([]error, len(posts))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, post := range posts {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, post *bsky.Post) {
			defer wg.Done()
			defer func() { <-sem }()
			ok, err := p.EvalWithContext(ctx, post)
			results[i] = ok
			errsOut[i] = err
		}(i, post)
	}
	wg.Wait()

	for _, err := range errsOut {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (p *Predicate) eval(ctx context.Context, e *Expr, post *bsky.Post) (bool, Meta, error) {
	var meta Meta
	switch e.Kind {
	case KindAll:
		return true, meta, nil
	case KindNone:
		return false, meta, nil

	case KindAuthor:
		return matchesHandleOrDID(post, e.Text), meta, nil
	case KindAuthorIn:
		for _, h := range e.Texts {
			if matchesHandleOrDID(post, h) {
				return true, meta, nil
			}
		}
		return false, meta, nil

	case KindHashtag:
		return containsFold(post.Hashtags, strings.ToLower(e.Text)), meta, nil
	case KindHashtagIn:
		for _, t := range e.Texts {
			if containsFold(post.Hashtags, strings.ToLower(t)) {
				return true, meta, nil
			}
		}
		return false, meta, nil

	case KindContains:
		return textContains(post.Text, e.Text, e.CaseSensitive), meta, nil

	case KindRegex:
		for _, pat := range e.Texts {
			re, err := compileRegex(pat, e.Flags)
			if err != nil {
				return false, meta, errs.NewFilterEvalError("regex evaluation failed", err)
			}
			if re.MatchString(post.Text) {
				return true, meta, nil
			}
		}
		return false, meta, nil

	case KindLanguage:
		for _, want := range e.Texts {
			for _, have := range post.Langs {
				if strings.EqualFold(want, have) {
					return true, meta, nil
				}
			}
		}
		return false, meta, nil

	case KindDateRange:
		t := post.CreatedAt
		return !t.Before(*e.Start) && !t.After(*e.End), meta, nil

	case KindEngagement:
		return engagementMet(post, e), meta, nil

	case KindIsReply:
		return post.IsReply(), meta, nil
	case KindIsQuote:
		return post.IsQuote(), meta, nil
	case KindIsRepost:
		return post.IsRepost(), meta, nil
	case KindIsOriginal:
		return post.IsOriginal(), meta, nil

	case KindHasImages:
		return post.HasImages(), meta, nil
	case KindMinImages:
		return imageCount(post) >= e.N, meta, nil
	case KindHasAltText:
		return anyAltText(post, func(alt string) bool { return strings.TrimSpace(alt) != "" }), meta, nil
	case KindNoAltText:
		return !anyAltText(post, func(alt string) bool { return strings.TrimSpace(alt) != "" }), meta, nil
	case KindAltText:
		return anyAltText(post, func(alt string) bool { return textContains(alt, e.Text, e.CaseSensitive) }), meta, nil
	case KindAltTextRegex:
		re, err := compileRegex(e.Pattern, e.Flags)
		if err != nil {
			return false, meta, errs.NewFilterEvalError("altTextRegex evaluation failed", err)
		}
		return anyAltText(post, re.MatchString), meta, nil

	case KindHasVideo:
		return post.HasVideo(), meta, nil
	case KindHasLinks:
		return post.HasLinks(), meta, nil
	case KindLinkContains:
		for _, l := range post.Links {
			if textContains(l, e.Text, e.CaseSensitive) {
				return true, meta, nil
			}
		}
		return false, meta, nil
	case KindLinkRegex:
		re, err := compileRegex(e.Pattern, e.Flags)
		if err != nil {
			return false, meta, errs.NewFilterEvalError("linkRegex evaluation failed", err)
		}
		for _, l := range post.Links {
			if re.MatchString(l) {
				return true, meta, nil
			}
		}
		return false, meta, nil
	case KindHasMedia:
		return post.HasMedia(), meta, nil
	case KindHasEmbed:
		return post.HasEmbed(), meta, nil

	case KindHasValidLinks:
		meta.ConsultedEffectful = true
		return p.evalHasValidLinks(ctx, e, post)

	case KindTrending:
		meta.ConsultedEffectful = true
		return p.evalTrending(ctx, e, post)

	case KindAnd:
		ok, lm, err := p.eval(ctx, e.Left, post)
		meta.ConsultedEffectful = meta.ConsultedEffectful || lm.ConsultedEffectful
		if err != nil || !ok {
			return false, meta, err
		}
		ok, rm, err := p.eval(ctx, e.Right, post)
		meta.ConsultedEffectful = meta.ConsultedEffectful || rm.ConsultedEffectful
		return ok, meta, err

	case KindOr:
		ok, lm, err := p.eval(ctx, e.Left, post)
		meta.ConsultedEffectful = meta.ConsultedEffectful || lm.ConsultedEffectful
		if err != nil || ok {
			return ok, meta, err
		}
		ok, rm, err := p.eval(ctx, e.Right, post)
		meta.ConsultedEffectful = meta.ConsultedEffectful || rm.ConsultedEffectful
		return ok, meta, err

	case KindNot:
		ok, cm, err := p.eval(ctx, e.Child, post)
		meta.ConsultedEffectful = cm.ConsultedEffectful
		if err != nil {
			return false, meta, err
		}
		return !ok, meta, nil

	default:
		return false, meta, errs.NewFilterEvalError(fmt.Sprintf("unknown filter kind %q", e.Kind), nil)
	}
}

func (p *Predicate) evalHasValidLinks(ctx context.Context, e *Expr, post *bsky.Post) (bool, Meta, error) {
	meta := Meta{ConsultedEffectful: true}
	if len(post.Links) == 0 {
		return true, meta, nil
	}
	if p.collab.Links == nil {
		return p.handleEffectfulError(ctx, *e.OnError, errs.NewFilterEvalError("no LinkChecker configured", nil), func(ctx context.Context) (bool, error) {
			return p.collab.Links.AllValid(ctx, post.Links)
		})
	}
	result, err := withRetry(ctx, *e.OnError, func(ctx context.Context) (bool, error) {
		return p.collab.Links.AllValid(ctx, post.Links)
	})
	return p.applyPolicy(*e.OnError, result, err, meta)
}

func (p *Predicate) evalTrending(ctx context.Context, e *Expr, post *bsky.Post) (bool, Meta, error) {
	meta := Meta{ConsultedEffectful: true}
	if p.collab.Trending == nil {
		return p.handleEffectfulError(ctx, *e.OnError, errs.NewFilterEvalError("no TrendingSource configured", nil), func(ctx context.Context) (bool, error) {
			return p.collab.Trending.IsTrending(ctx, e.Text)
		})
	}
	result, err := withRetry(ctx, *e.OnError, func(ctx context.Context) (bool, error) {
		return p.collab.Trending.IsTrending(ctx, e.Text)
	})
	return p.applyPolicy(*e.OnError, result, err, meta)
}

// handleEffectfulError applies the error policy directly when the
// collaborator itself is absent (fn is never called in this path; it exists
// only so callers share applyPolicy's signature).
func (p *Predicate) handleEffectfulError(ctx context.Context, policy ErrorPolicy, cause error, fn func(context.Context) (bool, error)) (bool, Meta, error) {
	return p.applyPolicy(policy, false, cause, Meta{ConsultedEffectful: true})
}

func (p *Predicate) applyPolicy(policy ErrorPolicy, result bool, err error, meta Meta) (bool, Meta, error) {
	if err == nil {
		return result, meta, nil
	}
	switch policy.Kind {
	case PolicyInclude:
		return true, meta, nil
	case PolicyExclude:
		return false, meta, nil
	default:
		return false, meta, errs.NewFilterEvalError("effectful atom failed after retries", err)
	}
}

// withRetry runs fn, retrying on error per policy when policy.Kind ==
// PolicyRetry using an exponential backoff seeded from policy.BaseDelay.
func withRetry(ctx context.Context, policy ErrorPolicy, fn func(context.Context) (bool, error)) (bool, error) {
	if policy.Kind != PolicyRetry {
		return fn(ctx)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.BaseDelay
	bctx := backoff.WithContext(b, ctx)

	var result bool
	attempt := 0
	op := func() error {
		attempt++
		r, err := fn(ctx)
		if err != nil {
			if attempt > policy.MaxRetries {
				return backoff.Permanent(err)
			}
			return err
		}
		result = r
		return nil
	}
	err := backoff.Retry(op, bctx)
	return result, err
}

func matchesHandleOrDID(post *bsky.Post, want string) bool {
	return strings.EqualFold(post.AuthorHandle, want) || post.AuthorDID == want
}

func containsFold(hay []string, want string) bool {
	for _, h := range hay {
		if strings.EqualFold(h, want) {
			return true
		}
	}
	return false
}

func textContains(haystack, needle string, caseSensitive bool) bool {
	if caseSensitive {
		return strings.Contains(haystack, needle)
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func engagementMet(post *bsky.Post, e *Expr) bool {
	m := post.Metrics
	// A count missing from the post is treated as 0.
	count := func(c *int) int {
		if c == nil {
			return 0
		}
		return *c
	}
	if e.MinLikes != nil && count(m.LikeCount) < *e.MinLikes {
		return false
	}
	if e.MinReposts != nil && count(m.RepostCount) < *e.MinReposts {
		return false
	}
	if e.MinReplies != nil && count(m.ReplyCount) < *e.MinReplies {
		return false
	}
	return true
}

func imageCount(post *bsky.Post) int {
	e := post.Embed
	if e == nil {
		return 0
	}
	if e.Kind == bsky.EmbedRecordWithMedia && e.Media != nil {
		e = e.Media
	}
	if e.Kind != bsky.EmbedImages {
		return 0
	}
	return len(e.Images)
}

func anyAltText(post *bsky.Post, pred func(string) bool) bool {
	e := post.Embed
	if e == nil {
		return false
	}
	if e.Kind == bsky.EmbedRecordWithMedia && e.Media != nil {
		e = e.Media
	}
	if e.Kind != bsky.EmbedImages {
		return false
	}
	for _, img := range e.Images {
		if pred(img.Alt) {
			return true
		}
	}
	return false
}

// ExplanationTree records, per node, whether it matched and why. Skipped
// marks a combinator's right-hand child that short-circuiting left to right
// never evaluated; it is still present in Children, just unevaluated.
type ExplanationTree struct {
	Kind     Kind               `json:"kind"`
	Matched  bool               `json:"matched"`
	Detail   string             `json:"detail,omitempty"`
	Skipped  bool               `json:"skipped,omitempty"`
	Children []*ExplanationTree `json:"children,omitempty"`
}

// Explain evaluates the predicate against post, building a full explanation
// tree alongside the boolean result.
func (p *Predicate) Explain(ctx context.Context, post *bsky.Post) (bool, *ExplanationTree, error) {
	return p.explain(ctx, p.expr, post)
}

// skippedTree builds a placeholder tree for an expression short-circuiting
// left to right never evaluated, mirroring its shape without a Matched verdict.
func skippedTree(e *Expr) *ExplanationTree {
	if e == nil {
		return nil
	}
	t := &ExplanationTree{Kind: e.Kind, Skipped: true}
	switch e.Kind {
	case KindAnd, KindOr:
		t.Children = []*ExplanationTree{skippedTree(e.Left), skippedTree(e.Right)}
	case KindNot:
		t.Children = []*ExplanationTree{skippedTree(e.Child)}
	}
	return t
}

func (p *Predicate) explain(ctx context.Context, e *Expr, post *bsky.Post) (bool, *ExplanationTree, error) {
	switch e.Kind {
	case KindAnd, KindOr:
		lok, lt, lerr := p.explain(ctx, e.Left, post)
		if lerr != nil {
			return false, lt, lerr
		}
		shortCircuit := (e.Kind == KindAnd && !lok) || (e.Kind == KindOr && lok)
		if shortCircuit {
			rt := skippedTree(e.Right)
			return lok, &ExplanationTree{Kind: e.Kind, Matched: lok, Children: []*ExplanationTree{lt, rt}}, nil
		}
		rok, rt, rerr := p.explain(ctx, e.Right, post)
		if rerr != nil {
			return false, &ExplanationTree{Kind: e.Kind, Children: []*ExplanationTree{lt, rt}}, rerr
		}
		matched := rok
		if e.Kind == KindAnd {
			matched = lok && rok
		} else {
			matched = lok || rok
		}
		return matched, &ExplanationTree{Kind: e.Kind, Matched: matched, Children: []*ExplanationTree{lt, rt}}, nil

	case KindNot:
		ok, ct, err := p.explain(ctx, e.Child, post)
		if err != nil {
			return false, &ExplanationTree{Kind: e.Kind, Children: []*ExplanationTree{ct}}, err
		}
		return !ok, &ExplanationTree{Kind: e.Kind, Matched: !ok, Children: []*ExplanationTree{ct}}, nil

	default:
		ok, _, err := p.eval(ctx, e, post)
		node := &ExplanationTree{Kind: e.Kind, Matched: ok}
		if err != nil {
			node.Detail = err.Error()
		}
		return ok, node, err
	}
}

// Expr exposes the compiled AST, for callers that need to serialize or
// inspect the predicate (e.g. computing its FilterSignature).
func (p *Predicate) Expr() *Expr { return p.expr }
