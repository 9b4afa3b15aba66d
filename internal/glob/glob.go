// Package glob implements shell-style pattern matching that, unlike
// path.Match, lets * cross path separators. Used for asset and change-set
// filtering where patterns like *Lamp* must match full object paths.
package glob

import (
	"regexp"
	"strings"
	"sync"
)

var (
	mu    sync.Mutex
	cache = map[string]*regexp.Regexp{}
)

// Match reports whether s matches pattern. * matches any run of characters,
// ? matches one. An empty pattern matches everything.
func Match(pattern, s string) bool {
	if pattern == "" {
		return true
	}
	re := compile(pattern)
	if re == nil {
		return false
	}
	return re.MatchString(s)
}

func compile(pattern string) *regexp.Regexp {
	mu.Lock()
	defer mu.Unlock()
	if re, ok := cache[pattern]; ok {
		return re
	}

	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil
	}
	cache[pattern] = re
	return re
}
