package gateway

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParseKind tags how much structure was recovered from a model reply.
type ParseKind int

const (
	// ParseEmpty means nothing usable was found.
	ParseEmpty ParseKind = iota
	// ParsePartial means the reply was truncated or malformed and only
	// part of it was recovered.
	ParsePartial
	// ParseComplete means a whole JSON value was decoded.
	ParseComplete
)

func (k ParseKind) String() string {
	switch k {
	case ParsePartial:
		return "partial"
	case ParseComplete:
		return "complete"
	default:
		return "empty"
	}
}

// Parsed is the structured form of a model reply. At most one of Object
// and Array is set.
type Parsed struct {
	Kind   ParseKind
	Object map[string]any
	Array  []any
}

// Empty reports whether nothing was recovered.
func (p Parsed) Empty() bool {
	return p.Kind == ParseEmpty || (len(p.Object) == 0 && len(p.Array) == 0)
}

var (
	fenceRe        = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")
	kvRe           = regexp.MustCompile(`"((?:[^"\\]|\\.)+)"\s*:\s*("(?:[^"\\]|\\.)*"|-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?|true|false|null)`)
	maxRepairTries = 64
	maxCandidates  = 64
)

// Parse extracts the JSON object or array embedded in a model reply. When
// prose holds several bracketed fragments, the widest one that decodes to
// a non-empty value wins. It never fails: unusable input yields a
// ParseEmpty result.
func Parse(text string) Parsed {
	text = strings.TrimSpace(text)
	if text == "" {
		return Parsed{}
	}
	if m := fenceRe.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
		text = strings.TrimSpace(m[1])
	} else if strings.HasPrefix(text, "```") {
		// Unterminated fence from a truncated reply.
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
	}

	if p, ok := embedded(text); ok {
		return p
	}
	return salvage(text)
}

// embedded tries each bracket position in text as the start of a JSON
// value. Fragments nested in a decoded value are not tried again.
func embedded(text string) (Parsed, bool) {
	var (
		best    Parsed
		bestLen int
		found   bool
	)
	better := func(p Parsed, n int) bool {
		if !found {
			return true
		}
		if p.Empty() != best.Empty() {
			return !p.Empty()
		}
		return n > bestLen
	}

	for i, tries := 0, 0; i < len(text) && tries < maxCandidates; tries++ {
		rel := strings.IndexAny(text[i:], "{[")
		if rel < 0 {
			break
		}
		start := i + rel
		body := text[start:]

		end, checkpoints := scan(body)
		if end < 0 {
			// Everything after an unterminated start is nested in it.
			if p, ok := repair(body, checkpoints); ok && better(p, len(body)) {
				return p, true
			}
			i = start + 1
			continue
		}
		if p, ok := decode(body[:end]); ok {
			p.Kind = ParseComplete
			if better(p, end) {
				best, bestLen, found = p, end, true
			}
			i = start + end
			continue
		}
		i = start + 1
	}
	return best, found
}

// repair closes a truncated value at its latest recoverable checkpoint.
func repair(body string, checkpoints []checkpoint) (Parsed, bool) {
	for i := len(checkpoints) - 1; i >= 0 && len(checkpoints)-i <= maxRepairTries; i-- {
		cp := checkpoints[i]
		if p, ok := decode(body[:cp.pos] + closers(cp.open)); ok && !p.Empty() {
			p.Kind = ParsePartial
			return p, true
		}
	}
	return Parsed{}, false
}

type checkpoint struct {
	pos  int
	open []byte
}

// scan walks a JSON-ish value starting at s[0]. It returns the index just
// past the matching close bracket, or -1 when the value is unterminated,
// plus a checkpoint after every inner close bracket.
func scan(s string) (int, []checkpoint) {
	var (
		stack       []byte
		checkpoints []checkpoint
		inString    bool
		escaped     bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				return -1, checkpoints
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i + 1, checkpoints
			}
			checkpoints = append(checkpoints, checkpoint{pos: i + 1, open: append([]byte(nil), stack...)})
		}
	}
	return -1, checkpoints
}

func closers(open []byte) string {
	var b strings.Builder
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

func decode(candidate string) (Parsed, bool) {
	var v any
	if err := json.Unmarshal([]byte(stripTrailingCommas(candidate)), &v); err != nil {
		return Parsed{}, false
	}
	switch t := v.(type) {
	case map[string]any:
		return Parsed{Object: t}, true
	case []any:
		return Parsed{Array: t}, true
	default:
		return Parsed{}, false
	}
}

// stripTrailingCommas removes commas that directly precede a close
// bracket, ignoring string contents.
func stripTrailingCommas(s string) string {
	var (
		b        strings.Builder
		inString bool
		escaped  bool
	)
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\n' || s[j] == '\t' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// salvage recovers flat "key": value pairs by pattern.
func salvage(text string) Parsed {
	matches := kvRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return Parsed{}
	}
	obj := make(map[string]any, len(matches))
	for _, m := range matches {
		var key string
		if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &key); err != nil {
			continue
		}
		var val any
		if err := json.Unmarshal([]byte(m[2]), &val); err != nil {
			continue
		}
		if _, seen := obj[key]; !seen {
			obj[key] = val
		}
	}
	if len(obj) == 0 {
		return Parsed{}
	}
	return Parsed{Kind: ParsePartial, Object: obj}
}
