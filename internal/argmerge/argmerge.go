// Package argmerge implements the pure server-argument merge function
// described in spec §4.2: three ordered token sources — setting, variant,
// alias — are folded into one deduplicated argument list honouring the
// llama.cpp-style flag grammar (flags with zero/one/two values, negative
// numbers, and a small set of explicitly multi-valued flags).
//
// Grounded in shape on the runtime-flag merge found in the retrieval pack's
// docker/cagent dmr client (mergeRuntimeFlagsPreferUser): tokenize into
// flag/value pairs, then let the higher-precedence source win on collision.
// This package generalises that idea to three sources and to flags that
// are allowed to repeat.
package argmerge

import (
	"regexp"
	"strings"
)

// Input is either a single whitespace-separated string or an already
// tokenized list — callers may pass either, matching spec §4.2's
// "single string or pre-split list" input shape.
type Input any

// multiValued is the set of flags allowed to appear more than once in the
// merged output, each invocation carrying distinct values. Kept as a plain
// map (not a typed enum) so a caller adapting this package to a different
// llama.cpp build can extend the set without touching the merge logic —
// per spec's open question about this set being build-dependent.
var multiValued = map[string]bool{
	"--logit-bias":  true,
	"--override-kv": true,
	"--lora-scaled": true,
}

// twoValued flags consume two positional tokens as their value instead of
// the usual one.
var twoValued = map[string]bool{
	"--lora-scaled": true,
}

var negativeNumber = regexp.MustCompile(`^--?-?\d`)

// record is one parsed (flag, values) pair. Values has 0 elements for a
// bare boolean flag, 1 for an ordinary flag, or 2 for --lora-scaled.
type record struct {
	flag   string
	values []string
}

// Tokenize splits a raw argument string on ASCII whitespace. No quoting is
// honoured, matching the llama.cpp server's own argv convention.
func Tokenize(s string) []string {
	return strings.Fields(s)
}

func toTokens(in Input) []string {
	switch v := in.(type) {
	case nil:
		return nil
	case string:
		return Tokenize(v)
	case []string:
		return v
	default:
		return nil
	}
}

// parse re-pairs a token stream into flag/value records per the grammar in
// spec §4.2. Tokens before the first "--flag" are dropped: the grammar has
// no concept of a positional argument outside a flag's own value slots.
func parse(tokens []string) []record {
	var out []record
	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		if !strings.HasPrefix(tok, "--") {
			i++
			continue
		}
		flag := tok
		i++

		switch {
		case twoValued[flag]:
			var vals []string
			for len(vals) < 2 && i < len(tokens) {
				vals = append(vals, tokens[i])
				i++
			}
			out = append(out, record{flag: flag, values: vals})

		case multiValued[flag]:
			// Exactly one value slot, consumed verbatim even if it
			// contains '=', ':' or a leading '+'/'-'.
			if i < len(tokens) {
				out = append(out, record{flag: flag, values: []string{tokens[i]}})
				i++
			} else {
				out = append(out, record{flag: flag})
			}

		default:
			if i < len(tokens) {
				next := tokens[i]
				if strings.HasPrefix(next, "--") && !negativeNumber.MatchString(next) {
					// next token starts a new flag: this one is a bare boolean.
					out = append(out, record{flag: flag})
					continue
				}
				out = append(out, record{flag: flag, values: []string{next}})
				i++
			} else {
				out = append(out, record{flag: flag})
			}
		}
	}
	return out
}

func render(recs []record) []string {
	out := make([]string, 0, len(recs)*2)
	for _, r := range recs {
		out = append(out, r.flag)
		out = append(out, r.values...)
	}
	return out
}

// Merge folds setting, variant, and alias argument sources into one
// deduplicated token list. Precedence is alias > variant > setting: for
// any single-valued flag present in more than one source, the
// highest-precedence source's value wins, but the flag's position in the
// output is its first-seen position across all three sources (spec §4.2
// step 3). Multi-valued flags (see multiValued above) are never
// deduplicated — every occurrence from every source survives, in source
// order with alias last.
func Merge(setting, variant, alias Input) []string {
	sources := [][]record{
		parse(toTokens(setting)),
		parse(toTokens(variant)),
		parse(toTokens(alias)),
	}

	var order []string
	latest := map[string]record{}
	seen := map[string]bool{}
	var multi []record

	for _, recs := range sources {
		for _, r := range recs {
			if multiValued[r.flag] {
				multi = append(multi, r)
				continue
			}
			if !seen[r.flag] {
				seen[r.flag] = true
				order = append(order, r.flag)
			}
			latest[r.flag] = r
		}
	}

	out := make([]record, 0, len(order)+len(multi))
	for _, flag := range order {
		out = append(out, latest[flag])
	}
	out = append(out, multi...)

	return render(out)
}

// MergeStrings is a convenience wrapper over Merge for callers holding raw
// (possibly empty) argument strings rather than pre-tokenized slices.
func MergeStrings(setting, variant, alias string) []string {
	return Merge(setting, variant, alias)
}
