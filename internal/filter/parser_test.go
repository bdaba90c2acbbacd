package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

func parse(t *testing.T, src string, opts ...ParseOption) *Expr {
	t.Helper()
	opts = append([]ParseOption{WithNow(fixedNow)}, opts...)
	expr, err := Parse(src, opts...)
	require.NoError(t, err)
	return expr
}

func TestParseBarewordAtoms(t *testing.T) {
	assert.Equal(t, KindIsReply, parse(t, "is:reply").Kind)
	assert.Equal(t, KindIsQuote, parse(t, "is:quote").Kind)
	assert.Equal(t, KindHasImages, parse(t, "has:images").Kind)
	assert.Equal(t, KindHasEmbed, parse(t, "has:embed").Kind)
	assert.Equal(t, KindNoAltText, parse(t, "has:noalttext").Kind)
}

func TestParseStandaloneBarewordAtoms(t *testing.T) {
	assert.Equal(t, KindIsReply, parse(t, "reply").Kind)
	assert.Equal(t, KindIsQuote, parse(t, "quote").Kind)
	assert.Equal(t, KindHasImages, parse(t, "hasimages").Kind)
	assert.Equal(t, KindHasLinks, parse(t, "links").Kind)
	assert.Equal(t, KindAll, parse(t, "all").Kind)
	assert.Equal(t, KindNone, parse(t, "none").Kind)
}

func TestParseHashtagAndLinksBareword(t *testing.T) {
	expr := parse(t, `hashtag:#ai AND links`)
	require.Equal(t, KindAnd, expr.Kind)
	assert.Equal(t, KindHashtag, expr.Left.Kind)
	assert.Equal(t, "ai", expr.Left.Text)
	assert.Equal(t, KindHasLinks, expr.Right.Kind)
}

func TestParseUnknownBarewordSubkeyErrors(t *testing.T) {
	_, err := Parse("has:bogus", WithNow(fixedNow))
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseKeyedAtoms(t *testing.T) {
	expr := parse(t, `author:alice.bsky.social`)
	assert.Equal(t, KindAuthor, expr.Kind)
	assert.Equal(t, "alice.bsky.social", expr.Text)

	expr = parse(t, `author_in:alice.bsky.social,bob.bsky.social`)
	assert.Equal(t, KindAuthorIn, expr.Kind)
	assert.Equal(t, []string{"alice.bsky.social", "bob.bsky.social"}, expr.Texts)

	expr = parse(t, `hashtag:"#golang"`)
	assert.Equal(t, KindHashtag, expr.Kind)
	assert.Equal(t, "golang", expr.Text)

	expr = parse(t, `regex:/foo.*bar/i`)
	assert.Equal(t, KindRegex, expr.Kind)
	assert.Equal(t, []string{"foo.*bar"}, expr.Texts)
	assert.Equal(t, "i", expr.Flags)

	expr = parse(t, `minlikes:10`)
	assert.Equal(t, KindEngagement, expr.Kind)
	require.NotNil(t, expr.MinLikes)
	assert.Equal(t, 10, *expr.MinLikes)
}

func TestParseImplicitAndAndExplicitOr(t *testing.T) {
	expr := parse(t, `is:reply has:images`)
	assert.Equal(t, KindAnd, expr.Kind)
	assert.Equal(t, KindIsReply, expr.Left.Kind)
	assert.Equal(t, KindHasImages, expr.Right.Kind)

	expr = parse(t, `is:reply OR is:quote`)
	assert.Equal(t, KindOr, expr.Kind)
}

func TestParseNotBindsTighterThanAnd(t *testing.T) {
	expr := parse(t, `NOT is:reply has:images`)
	require.Equal(t, KindAnd, expr.Kind)
	assert.Equal(t, KindNot, expr.Left.Kind)
	assert.Equal(t, KindIsReply, expr.Left.Child.Kind)
	assert.Equal(t, KindHasImages, expr.Right.Kind)
}

func TestParseParentheses(t *testing.T) {
	expr := parse(t, `(is:reply OR is:quote) has:images`)
	require.Equal(t, KindAnd, expr.Kind)
	assert.Equal(t, KindOr, expr.Left.Kind)
}

func TestParseHasValidLinksErrorPolicy(t *testing.T) {
	expr := parse(t, `hasvalidlinks:onerror=include`)
	assert.Equal(t, KindHasValidLinks, expr.Kind)
	require.NotNil(t, expr.OnError)
	assert.Equal(t, PolicyInclude, expr.OnError.Kind)

	expr = parse(t, `hasvalidlinks:onerror="retry(3,250ms)"`)
	require.NotNil(t, expr.OnError)
	assert.Equal(t, PolicyRetry, expr.OnError.Kind)
	assert.Equal(t, 3, expr.OnError.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, expr.OnError.BaseDelay)

	expr = parse(t, `hasvalidlinks:`)
	require.NotNil(t, expr.OnError)
	assert.Equal(t, PolicyExclude, expr.OnError.Kind, "missing onerror option defaults to Exclude")
}

func TestParseOptionKeyNormalization(t *testing.T) {
	expr := parse(t, `hasvalidlinks:on_error=include`)
	require.NotNil(t, expr.OnError)
	assert.Equal(t, PolicyInclude, expr.OnError.Kind)

	expr = parse(t, `hasvalidlinks:On-Error=include`)
	require.NotNil(t, expr.OnError)
	assert.Equal(t, PolicyInclude, expr.OnError.Kind)

	expr = parse(t, `contains:"foo" C-A_S-E=true`)
	assert.True(t, expr.CaseSensitive)
}

func TestParseUnknownOptionKeyErrors(t *testing.T) {
	_, err := Parse(`contains:"foo" bogus=true`, WithNow(fixedNow))
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)

	_, err = Parse(`hasvalidlinks:bogus=true`, WithNow(fixedNow))
	require.Error(t, err)
	require.ErrorAs(t, err, &perr)
}

func TestParseSingleQuotedStringLiteral(t *testing.T) {
	expr := parse(t, `author:'alice.bsky.social'`)
	assert.Equal(t, KindAuthor, expr.Kind)
	assert.Equal(t, "alice.bsky.social", expr.Text)
}

func TestParseTrendingWithOnError(t *testing.T) {
	expr := parse(t, `trending:"golang" onerror=include`)
	assert.Equal(t, KindTrending, expr.Kind)
	assert.Equal(t, "golang", expr.Text)
	require.NotNil(t, expr.OnError)
	assert.Equal(t, PolicyInclude, expr.OnError.Kind)
}

func TestParseAgeAndSince(t *testing.T) {
	expr := parse(t, `age:24h`)
	assert.Equal(t, KindDateRange, expr.Kind)
	assert.Equal(t, fixedNow.Add(-24*time.Hour), *expr.Start)
	assert.Equal(t, fixedNow, *expr.End)

	expr = parse(t, `since:2026-01-01`)
	assert.Equal(t, KindDateRange, expr.Kind)
	assert.Equal(t, fixedNow, *expr.End)
}

type mapResolver map[string]string

func (m mapResolver) Resolve(name string) (string, error) {
	src, ok := m[name]
	if !ok {
		return "", assert.AnError
	}
	return src, nil
}

func TestParseNamedFilterResolution(t *testing.T) {
	resolver := mapResolver{"trusted": `author_in:alice.bsky.social,bob.bsky.social`}
	expr := parse(t, `@trusted has:images`, WithNamedFilterResolver(resolver))
	require.Equal(t, KindAnd, expr.Kind)
	assert.Equal(t, KindAuthorIn, expr.Left.Kind)
}

func TestParseNamedFilterCycleDetected(t *testing.T) {
	resolver := mapResolver{
		"a": `@b`,
		"b": `@a`,
	}
	_, err := Parse(`@a`, WithNow(fixedNow), WithNamedFilterResolver(resolver))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestParseNamedFilterWithoutResolverErrors(t *testing.T) {
	_, err := Parse(`@trusted`, WithNow(fixedNow))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no resolver configured")
}

func TestParseTrailingGarbageErrors(t *testing.T) {
	_, err := Parse(`is:reply )`, WithNow(fixedNow))
	require.Error(t, err)
}

func TestParseDeeplyNestedParensRejected(t *testing.T) {
	src := ""
	for i := 0; i < maxParserDepth+10; i++ {
		src += "("
	}
	src += "is:reply"
	for i := 0; i < maxParserDepth+10; i++ {
		src += ")"
	}
	_, err := Parse(src, WithNow(fixedNow))
	require.Error(t, err)
}
