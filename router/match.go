package router

// MatchPattern reports whether pattern matches topic using the same
// segment grammar Register/Resolve use, without requiring a populated
// Router. Used by callers that only need a one-off membership check
// against a small pattern list — ratelimit's whitelist, for instance —
// rather than the full trie.
func MatchPattern(pattern, topic string) (bool, error) {
	segs, err := splitPattern(pattern)
	if err != nil {
		return false, err
	}
	topicSegs, err := splitTopic(topic)
	if err != nil {
		return false, err
	}
	return matchSegments(segs, topicSegs), nil
}

func matchSegments(pat []segment, top []string) bool {
	if len(pat) == 0 {
		return len(top) == 0
	}
	switch pat[0].kind {
	case segHash:
		return true
	case segLiteral:
		if len(top) == 0 || top[0] != pat[0].text {
			return false
		}
		return matchSegments(pat[1:], top[1:])
	case segPlus, segParam:
		if len(top) == 0 {
			return false
		}
		return matchSegments(pat[1:], top[1:])
	}
	return false
}
