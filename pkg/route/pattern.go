package route

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/the-dev-tools/socketapi/pkg/errmap"
)

// Converter turns a raw path segment into a typed parameter value. ok is false
// when the segment does not have the expected shape, in which case the
// pattern does not match.
type Converter func(segment string) (value any, ok bool)

var converters = map[string]Converter{
	"string": func(s string) (any, bool) { return s, true },
	"int": func(s string) (any, bool) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	},
	"uuid": func(s string) (any, bool) {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, false
		}
		return id, true
	},
	"ulid": func(s string) (any, bool) {
		id, err := ulid.ParseStrict(s)
		if err != nil {
			return nil, false
		}
		return id, true
	},
}

type segment struct {
	literal string
	param   string
	convert Converter
}

func (s segment) isLiteral() bool { return s.param == "" }

// pattern is a parsed URI template such as "/boards/<int:board>/cards/<id>".
type pattern struct {
	raw        string
	segments   []segment
	collection bool
}

func parsePattern(raw string) (*pattern, error) {
	parts, collection, err := splitURI(raw)
	if err != nil {
		return nil, errmap.New(errmap.CodeInvalidPattern, "invalid pattern "+strconv.Quote(raw), err)
	}

	p := &pattern{raw: raw, collection: collection, segments: make([]segment, 0, len(parts))}
	seen := make(map[string]struct{})
	for _, part := range parts {
		if !strings.ContainsAny(part, "<>") {
			p.segments = append(p.segments, segment{literal: part})
			continue
		}
		if !strings.HasPrefix(part, "<") || !strings.HasSuffix(part, ">") {
			return nil, errmap.Newf(errmap.CodeInvalidPattern, "invalid pattern %q: placeholder must span a whole segment", raw)
		}
		inner := part[1 : len(part)-1]
		kind, name, found := strings.Cut(inner, ":")
		if !found {
			kind, name = "string", inner
		}
		convert, ok := converters[kind]
		if !ok {
			return nil, errmap.Newf(errmap.CodeInvalidPattern, "invalid pattern %q: unknown converter %q", raw, kind)
		}
		if name == "" {
			return nil, errmap.Newf(errmap.CodeInvalidPattern, "invalid pattern %q: unnamed placeholder", raw)
		}
		if _, dup := seen[name]; dup {
			return nil, errmap.Newf(errmap.CodeInvalidPattern, "invalid pattern %q: duplicate placeholder %q", raw, name)
		}
		seen[name] = struct{}{}
		p.segments = append(p.segments, segment{param: name, convert: convert})
	}
	return p, nil
}

// match reports whether the given URI segments satisfy the pattern and
// returns the converted parameters.
func (p *pattern) match(parts []string, collection bool) (Params, bool) {
	if collection != p.collection || len(parts) != len(p.segments) {
		return nil, false
	}
	var params Params
	for i, seg := range p.segments {
		if seg.isLiteral() {
			if seg.literal != parts[i] {
				return nil, false
			}
			continue
		}
		v, ok := seg.convert(parts[i])
		if !ok {
			return nil, false
		}
		if params == nil {
			params = make(Params, len(p.segments))
		}
		params[seg.param] = v
	}
	return params, true
}

// matchCollection reports whether the pattern lives in the collection given
// by parts, i.e. whether the pattern's collection prefix matches.
func (p *pattern) matchCollection(parts []string) bool {
	prefix := p.segments
	if !p.collection {
		prefix = prefix[:len(prefix)-1]
	}
	if len(prefix) != len(parts) {
		return false
	}
	for i, seg := range prefix {
		if seg.isLiteral() {
			if seg.literal != parts[i] {
				return false
			}
			continue
		}
		if _, ok := seg.convert(parts[i]); !ok {
			return false
		}
	}
	return true
}

// moreSpecific reports whether p beats q: the first segment where one is a
// literal and the other a placeholder decides.
func (p *pattern) moreSpecific(q *pattern) bool {
	for i := range p.segments {
		pl, ql := p.segments[i].isLiteral(), q.segments[i].isLiteral()
		if pl != ql {
			return pl
		}
	}
	return false
}
