// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package rewrite translates message text between a backend's identifier
// syntax and the human syntax shown to the user.
//
// A Rewriter is built from substitution pairs. Ingress (ToHuman) replaces
// every code with its human form, egress (ToPlatform) does the reverse. At
// any position the longest matching key wins, so "@bobby" is never rewritten
// as "@bob" followed by "by". A key ending in a name character only matches
// at the end of a word: with "#town" known, "#townhall" is left alone. Text
// that matches no key passes through.
package rewrite

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Pair links a backend code to its human form.
type Pair struct {
	Code  string
	Human string
}

// UserPair maps a user code to "@name".
func UserPair(code, name string) Pair {
	return Pair{Code: code, Human: "@" + name}
}

// ChannelPair maps a channel code to "#name".
func ChannelPair(code, name string) Pair {
	return Pair{Code: code, Human: "#" + name}
}

type Options struct {
	// DecodeEntities decodes the HTML entities &amp; &lt; &gt; &quot; and
	// &#39; on ingress before any substitution.
	DecodeEntities bool
}

var entityDecoder = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

// Rewriter is immutable and safe for concurrent use.
type Rewriter struct {
	opts       Options
	toHuman    table
	toPlatform table
}

// New builds a Rewriter from any number of pair tables. Identity pairs and
// pairs with an empty side are dropped. When two pairs share a key, the one
// given first wins.
func New(opts Options, tables ...[]Pair) *Rewriter {
	var pairs []Pair
	for _, pt := range tables {
		for _, p := range pt {
			if p.Code == "" || p.Human == "" || p.Code == p.Human {
				continue
			}
			pairs = append(pairs, p)
		}
	}
	return &Rewriter{
		opts:       opts,
		toHuman:    buildTable(pairs, func(p Pair) (string, string) { return p.Code, p.Human }),
		toPlatform: buildTable(pairs, func(p Pair) (string, string) { return p.Human, p.Code }),
	}
}

type entry struct{ key, val string }

// table holds the keys of one direction grouped by first byte, longest
// first within a group.
type table map[byte][]entry

func buildTable(pairs []Pair, kv func(Pair) (string, string)) table {
	t := make(table)
	seen := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		k, v := kv(p)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		t[k[0]] = append(t[k[0]], entry{k, v})
	}
	for _, group := range t {
		slices.SortStableFunc(group, func(a, b entry) int {
			return cmp.Compare(len(b.key), len(a.key))
		})
	}
	return t
}

// match returns the longest key that starts text and ends on a word
// boundary.
func (t table) match(text string) (entry, bool) {
	if text == "" {
		return entry{}, false
	}
	for _, e := range t[text[0]] {
		if strings.HasPrefix(text, e.key) && wordEnd(e.key, text[len(e.key):]) {
			return e, true
		}
	}
	return entry{}, false
}

func (t table) replace(text string) string {
	if len(t) == 0 {
		return text
	}
	var sb strings.Builder
	sb.Grow(len(text))
	for i := 0; i < len(text); {
		if e, ok := t.match(text[i:]); ok {
			sb.WriteString(e.val)
			i += len(e.key)
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		sb.WriteString(text[i : i+size])
		i += size
	}
	return sb.String()
}

// ToHuman rewrites backend text for display.
func (r *Rewriter) ToHuman(text string) string {
	if r.opts.DecodeEntities {
		text = entityDecoder.Replace(text)
	}
	return r.toHuman.replace(text)
}

// ToPlatform rewrites user-typed text for the backend.
func (r *Rewriter) ToPlatform(text string) string {
	return r.toPlatform.replace(text)
}

// Mentions reports whether human text contains form as a whole word. An
// occurrence that is the start of a longer known name, like "@Alice Smith"
// for "@Alice", does not count.
func (r *Rewriter) Mentions(text, form string) bool {
	if form == "" {
		return false
	}
	for i := 0; ; {
		j := strings.Index(text[i:], form)
		if j < 0 {
			return false
		}
		i += j
		if wordEnd(form, text[i+len(form):]) {
			if e, ok := r.toPlatform.match(text[i:]); !ok || len(e.key) <= len(form) {
				return true
			}
		}
		i++
	}
}

// wordEnd reports whether key may end where rest begins: either key does
// not end in a name character or rest does not start with one.
func wordEnd(key, rest string) bool {
	last, _ := utf8.DecodeLastRuneInString(key)
	if !isNameRune(last) || rest == "" {
		return true
	}
	next, _ := utf8.DecodeRuneInString(rest)
	return !isNameRune(next)
}

func isNameRune(r rune) bool {
	return r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
