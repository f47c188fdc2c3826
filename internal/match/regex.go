package match

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/counselling-resolver/internal/refstore"
)

// Regex matches a case-insensitive regular expression against every
// variation. The query is a pattern when the caller says so or when the raw
// text is wrapped in slashes. Invalid patterns match nothing.
type Regex struct {
	Timeout time.Duration
}

// Name implements Strategy.
func (Regex) Name() string { return NameRegex }

// Applies implements Strategy.
func (Regex) Applies(q Query) bool {
	_, ok := RegexSource(q)
	return ok
}

// Match implements Strategy.
func (r Regex) Match(ctx context.Context, q Query, entities []*refstore.CanonicalEntity) ([]Candidate, error) {
	src, ok := RegexSource(q)
	if !ok {
		return nil, nil
	}
	re, err := regexp.Compile("(?i)" + src)
	if err != nil {
		zap.L().Warn("match: invalid regex pattern", zap.String("pattern", src), zap.Error(err))
		return nil, nil
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	c := newCollector(NameRegex)
	for i, e := range entities {
		if err := checkCtx(ctx, i); err != nil {
			return nil, eris.Wrapf(err, "match: regex %q", src)
		}
		for _, v := range e.Variations {
			if re.MatchString(v) {
				c.add(e, 35, "regex")
				break
			}
		}
	}
	return c.result(), nil
}

// RegexSource returns the pattern carried by q, if any.
func RegexSource(q Query) (string, bool) {
	raw := strings.TrimSpace(q.Raw)
	if q.Pattern {
		return raw, raw != ""
	}
	if len(raw) > 2 && strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") {
		return raw[1 : len(raw)-1], true
	}
	return "", false
}
