package router

import (
	"fmt"
	"strings"

	"github.com/routemq/routemq/core"
)

// segmentKind classifies one "/"-delimited piece of a pattern.
type segmentKind int

const (
	segLiteral segmentKind = iota
	segParam               // {name}
	segPlus                // +
	segHash                // #
)

type segment struct {
	kind segmentKind
	text string // literal text, or parameter name for segParam
}

// splitPattern parses and validates a route pattern (spec §4.1): "#" may
// only appear as the final segment, "{name}" occupies exactly one segment,
// and parameter names must be unique within the pattern. A segment that
// mixes "#" with anything else (e.g. "{id}#") is rejected.
func splitPattern(pattern string) ([]segment, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: %q: empty pattern", ErrInvalidPattern, pattern)
	}
	parts := strings.Split(pattern, "/")
	segments := make([]segment, 0, len(parts))
	seen := make(map[string]bool, len(parts))

	for i, p := range parts {
		switch {
		case p == "#":
			if i != len(parts)-1 {
				return nil, fmt.Errorf("%w: %q: %q is only valid as the final segment", ErrInvalidPattern, pattern, "#")
			}
			segments = append(segments, segment{kind: segHash})

		case strings.Contains(p, "#"):
			return nil, fmt.Errorf("%w: %q: %q cannot be combined with other text in a segment", ErrInvalidPattern, pattern, p)

		case p == "+":
			segments = append(segments, segment{kind: segPlus})

		case strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") && len(p) > 2:
			name := p[1 : len(p)-1]
			if seen[name] {
				return nil, fmt.Errorf("%w: %q: duplicate parameter name %q", ErrInvalidPattern, pattern, name)
			}
			seen[name] = true
			segments = append(segments, segment{kind: segParam, text: name})

		default:
			segments = append(segments, segment{kind: segLiteral, text: p})
		}
	}
	return segments, nil
}

// splitTopic splits a concrete inbound topic into segments, rejecting the
// forms the MQTT spec forbids (spec §4.1: empty topic, or one containing
// "//").
func splitTopic(topic string) ([]string, error) {
	if topic == "" {
		return nil, core.ErrInvalidTopic
	}
	if strings.Contains(topic, "//") {
		return nil, core.ErrInvalidTopic
	}
	return strings.Split(topic, "/"), nil
}
