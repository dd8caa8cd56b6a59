package event

import "strings"

// MatchPath はドキュメントパスがパターンに一致するかを判定する。
// パターンの "{name}" セグメントは任意の1セグメントに一致し、その値をparamsに格納する。
//
//	MatchPath("chats/{chatId}/messages/{messageId}", "chats/c1/messages/m1")
//	// => map[chatId:c1 messageId:m1], true
func MatchPath(pattern, path string) (map[string]string, bool) {
	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	ds := strings.Split(strings.Trim(path, "/"), "/")
	if len(ps) != len(ds) {
		return nil, false
	}

	params := make(map[string]string)
	for i, p := range ps {
		if ds[i] == "" {
			return nil, false
		}
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			params[p[1:len(p)-1]] = ds[i]
			continue
		}
		if p != ds[i] {
			return nil, false
		}
	}
	return params, true
}
