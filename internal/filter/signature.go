package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Signature is a stable structural hash of a FilterExpr: two expressions
// that are semantically identical (same Kind, same field values, same
// combinator shape) always produce the same Signature regardless of
// construction order, tree sharing, or their original DSL source text.
type Signature uint64

// String renders the signature as a fixed-width hex string, for use as a
// filter_library row key or a derivation checkpoint tag.
func (s Signature) String() string {
	return fmt.Sprintf("%016x", uint64(s))
}

// ComputeSignature hashes expr's canonical encoding. The encoding writes the
// node Kind first, then every semantically relevant field in a fixed order,
// recursing into children depth-first; multi-value fields are sorted so
// construction order never perturbs the hash.
func ComputeSignature(expr *Expr) Signature {
	h := xxhash.New()
	encodeExpr(h, expr)
	return Signature(h.Sum64())
}

func encodeExpr(h *xxhash.Digest, e *Expr) {
	if e == nil {
		h.WriteString("\x00nil")
		return
	}
	h.WriteString("\x01kind:")
	h.WriteString(string(e.Kind))

	writeField := func(name, value string) {
		h.WriteString("\x02" + name + "=")
		h.WriteString(value)
	}

	if e.Text != "" {
		writeField("text", e.Text)
	}
	if e.CaseSensitive {
		writeField("cs", "1")
	}
	if len(e.Texts) > 0 {
		sorted := append([]string{}, e.Texts...)
		sort.Strings(sorted)
		writeField("texts", strings.Join(sorted, "\x1f"))
	}
	if e.Pattern != "" {
		writeField("pattern", e.Pattern)
	}
	if e.Flags != "" {
		writeField("flags", e.Flags)
	}
	if e.Start != nil {
		writeField("start", e.Start.UTC().Format("20060102T150405.000000000Z"))
	}
	if e.End != nil {
		writeField("end", e.End.UTC().Format("20060102T150405.000000000Z"))
	}
	if e.MinLikes != nil {
		writeField("minLikes", strconv.Itoa(*e.MinLikes))
	}
	if e.MinReposts != nil {
		writeField("minReposts", strconv.Itoa(*e.MinReposts))
	}
	if e.MinReplies != nil {
		writeField("minReplies", strconv.Itoa(*e.MinReplies))
	}
	if e.N != 0 {
		writeField("n", strconv.Itoa(e.N))
	}
	if e.OnError != nil {
		writeField("onError.kind", string(e.OnError.Kind))
		writeField("onError.maxRetries", strconv.Itoa(e.OnError.MaxRetries))
		writeField("onError.baseDelay", e.OnError.BaseDelay.String())
	}

	if e.Left != nil {
		h.WriteString("\x03left(")
		encodeExpr(h, e.Left)
		h.WriteString(")")
	}
	if e.Right != nil {
		h.WriteString("\x03right(")
		encodeExpr(h, e.Right)
		h.WriteString(")")
	}
	if e.Child != nil {
		h.WriteString("\x03child(")
		encodeExpr(h, e.Child)
		h.WriteString(")")
	}
}
