package sqlbridge

import (
	cryptorand "crypto/rand"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
)

const (
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	tokenLen      = 7
)

// sqlPosition is one occurrence of a named placeholder: the key, the
// literal as written (":key"), the random token that replaced it and its
// offset in the randomized SQL.
type sqlPosition struct {
	key     string
	literal string
	token   string
	offset  int
}

// Rewrite encodes params for dialect d and replaces every :key placeholder
// in sql with the dialect's positional marker. The returned values follow
// the markers left to right; a key used N times yields N copies of its
// value. Keys that never occur are ignored.
func Rewrite(sql string, params map[string]any, d Dialect) (string, []Value, error) {
	values, err := EncodeParams(params, d)
	if err != nil {
		return "", nil, err
	}
	return RewriteValues(sql, values, d)
}

// RewriteValues is Rewrite for parameters that are already Values.
func RewriteValues(sql string, params map[string]Value, d Dialect) (string, []Value, error) {
	return newRewriter(d, defaultConfig(d)).rewrite(sql, params)
}

// rewriter carries the per-Bridge settings of the rewrite. The algorithm
// itself keeps no state between calls.
type rewriter struct {
	dialect    Dialect
	maxParams  int
	maxNameLen int
	logger     *slog.Logger
	plans      *planCache
}

func newRewriter(d Dialect, cfg Config) *rewriter {
	return &rewriter{
		dialect:    d,
		maxParams:  cfg.MaxParams,
		maxNameLen: cfg.MaxNameLen,
		logger:     cfg.Logger,
		plans:      newPlanCache(cfg.PlanCacheSize),
	}
}

func (rw *rewriter) rewrite(sql string, params map[string]Value) (string, []Value, error) {
	if len(params) == 0 {
		return sql, []Value{}, nil
	}
	if err := rw.validate(sql, params); err != nil {
		return "", nil, err
	}

	var sig string
	var key uint64
	if rw.plans != nil {
		key, sig = planKey(rw.dialect, sql, params)
		if p, ok := rw.plans.get(key, rw.dialect, sql, sig); ok {
			rw.logger.Debug("sqlbridge: rewrite plan reused", "dialect", rw.dialect, "params", len(p.order))
			return p.out, p.bind(params), nil
		}
	}

	work, positions := rw.randomize(sql, params)
	if rw.maxParams > 0 && len(positions) > rw.maxParams {
		return "", nil, fmt.Errorf("%w: requested=%d, limit=%d", ErrTooManyParams, len(positions), rw.maxParams)
	}
	resolvePositions(work, positions)

	var b strings.Builder
	b.Grow(len(work) + len(positions)*3)
	order := make([]string, len(positions))
	last := 0
	for i, p := range positions {
		b.WriteString(work[last:p.offset])
		writePlaceholder(&b, rw.dialect, i+1)
		last = p.offset + 1 + len(p.token)
		order[i] = p.key
	}
	b.WriteString(work[last:])
	out := b.String()

	p := &plan{dialect: rw.dialect, sql: sql, sig: sig, out: out, order: order}
	if rw.plans != nil {
		rw.plans.put(key, p)
	}
	rw.logger.Info("sqlbridge: statement rewritten", "dialect", rw.dialect, "sql", out, "params", len(order))
	return out, p.bind(params), nil
}

// validate checks the keys that occur in sql: names must be identifiers no
// longer than maxNameLen, and array values need a dialect with array
// columns. Keys that never occur are left alone.
func (rw *rewriter) validate(sql string, params map[string]Value) error {
	for _, k := range slices.Sorted(maps.Keys(params)) {
		if indexPlaceholder(sql, ":"+k, 0) < 0 {
			continue
		}
		if !isIdentifier(k) {
			return fmt.Errorf("%w: invalid parameter name %q", ErrInvalidParam, k)
		}
		if rw.maxNameLen > 0 && len(k) > rw.maxNameLen {
			return fmt.Errorf("%w: %q is longer than %d", ErrParamNameTooLong, k, rw.maxNameLen)
		}
		v := params[k]
		if (v.kind == KindArray || v.kind == KindEnumArray) && !rw.dialect.SupportsArrays() {
			ce := unsupported(v.kind.String(), "array", arraysReason(rw.dialect)).err()
			return ce.withField(k)
		}
	}
	return nil
}

// randomize replaces each placeholder occurrence, one at a time, with a
// fresh random token. Longer keys go first so a key never matches inside a
// longer key sharing its prefix.
func (rw *rewriter) randomize(sql string, params map[string]Value) (string, []sqlPosition) {
	keys := slices.Collect(maps.Keys(params))
	slices.SortFunc(keys, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})

	rng := newTokenSource()
	work := sql
	var positions []sqlPosition
	for _, key := range keys {
		if !isIdentifier(key) {
			continue
		}
		literal := ":" + key
		from := 0
		for {
			i := indexPlaceholder(work, literal, from)
			if i < 0 {
				break
			}
			tok := mintToken(rng, work, params, positions)
			work = work[:i] + ":" + tok + work[i+len(literal):]
			positions = append(positions, sqlPosition{key: key, literal: literal, token: tok, offset: i})
			rw.logger.Debug("sqlbridge: placeholder randomized", "key", key, "token", tok, "offset", i)
			from = i + 1 + len(tok)
		}
	}
	return work, positions
}

// indexPlaceholder finds the next occurrence of literal at or after from. An
// occurrence preceded by ':' (a postgres cast) or followed by an identifier
// byte (a longer name) does not count.
func indexPlaceholder(s, literal string, from int) int {
	for from <= len(s) {
		j := strings.Index(s[from:], literal)
		if j < 0 {
			return -1
		}
		i := from + j
		end := i + len(literal)
		if (i > 0 && s[i-1] == ':') || (end < len(s) && isAlphaNumUnderscore(s[end])) {
			from = i + 1
			continue
		}
		return i
	}
	return -1
}

// mintToken returns a token absent from the working SQL, different from
// every parameter name, and neither containing nor contained in a token
// already minted. Each collision makes the next candidate one byte longer.
func mintToken(rng *rand.Rand, work string, params map[string]Value, minted []sqlPosition) string {
	n := tokenLen
	for {
		tok := randomToken(rng, n)
		if !tokenCollides(tok, work, params, minted) {
			return tok
		}
		n++
	}
}

func tokenCollides(tok, work string, params map[string]Value, minted []sqlPosition) bool {
	if strings.Contains(work, tok) {
		return true
	}
	if _, ok := params[tok]; ok {
		return true
	}
	for _, p := range minted {
		if strings.Contains(p.token, tok) || strings.Contains(tok, p.token) {
			return true
		}
	}
	return false
}

// resolvePositions records the final offset of every token and sorts the
// occurrences left to right.
func resolvePositions(work string, positions []sqlPosition) {
	for i := range positions {
		positions[i].offset = strings.Index(work, ":"+positions[i].token)
	}
	slices.SortFunc(positions, func(a, b sqlPosition) int {
		return a.offset - b.offset
	})
}

// newTokenSource returns a generator private to one rewrite.
func newTokenSource() *rand.Rand {
	var seed [32]byte
	_, _ = cryptorand.Read(seed[:])
	return rand.New(rand.NewChaCha8(seed))
}

func randomToken(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = tokenAlphabet[rng.IntN(len(tokenAlphabet))]
	}
	return string(b)
}

// writePlaceholder appends the positional marker for the idx-th parameter,
// counting from 1.
func writePlaceholder(b *strings.Builder, d Dialect, idx int) {
	switch d {
	case Postgres:
		b.WriteByte('$')
		var tmp [20]byte
		b.Write(strconv.AppendInt(tmp[:0], int64(idx), 10))
	case SQLServer:
		b.WriteString("@P")
		var tmp [20]byte
		b.Write(strconv.AppendInt(tmp[:0], int64(idx), 10))
	default: // MySQL, SQLite
		b.WriteByte('?')
	}
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isAlphaNumUnderscore(s[i]) {
			return false
		}
	}
	return true
}

// isAlphaUnderscore reports whether b is [A-Za-z_] .
func isAlphaUnderscore(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '_'
}

// isAlphaNumUnderscore reports whether b is [A-Za-z0-9_] .
func isAlphaNumUnderscore(b byte) bool {
	return isAlphaUnderscore(b) || (b >= '0' && b <= '9')
}
