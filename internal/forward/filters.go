package forward

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"relaybot/internal/domain"
)

// Filter is one predicate in the matcher chain. A rule matches a message only
// when every filter allows it.
type Filter interface {
	Name() string
	Allow(rule domain.ForwardingRule, msg domain.InboundMessage) bool
}

type funcFilter struct {
	name string
	fn   func(domain.ForwardingRule, domain.InboundMessage) bool
}

func (f funcFilter) Name() string { return f.name }

func (f funcFilter) Allow(rule domain.ForwardingRule, msg domain.InboundMessage) bool {
	return f.fn(rule, msg)
}

// FilterFunc wraps fn as a named Filter.
func FilterFunc(name string, fn func(domain.ForwardingRule, domain.InboundMessage) bool) Filter {
	return funcFilter{name: name, fn: fn}
}

// DefaultFilters returns the built-in chain: type, content pattern, keywords, length.
func DefaultFilters() []Filter {
	return []Filter{
		TypeFilter(),
		NewPatternFilter(),
		KeywordFilter(),
		LengthFilter(),
	}
}

// TypeFilter passes messages whose primary type is in the rule's allowed set.
func TypeFilter() Filter {
	return FilterFunc("type", func(rule domain.ForwardingRule, msg domain.InboundMessage) bool {
		t := msg.Type
		if t == "" {
			t = domain.Classify(msg)
		}
		return rule.Filters.AllowsType(t)
	})
}

// PatternFilter matches the rule's content pattern against the message text.
// Compiled expressions are cached by pattern and case mode.
type PatternFilter struct {
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

func NewPatternFilter() *PatternFilter {
	return &PatternFilter{cache: make(map[string]*regexp.Regexp)}
}

func (f *PatternFilter) Name() string { return "pattern" }

func (f *PatternFilter) Allow(rule domain.ForwardingRule, msg domain.InboundMessage) bool {
	pattern := rule.Filters.ContentPattern
	if pattern == "" {
		return true
	}
	re := f.compile(pattern, rule.Filters.CaseSensitive)
	if re == nil {
		return false
	}
	return re.MatchString(msg.Text)
}

func (f *PatternFilter) compile(pattern string, caseSensitive bool) *regexp.Regexp {
	key := pattern
	if !caseSensitive {
		key = "(?i)" + pattern
	}

	f.mu.RLock()
	re, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		return re
	}

	// A bad pattern is cached as nil so it fails closed without recompiling.
	re, err := regexp.Compile(key)
	if err != nil {
		re = nil
	}
	f.mu.Lock()
	f.cache[key] = re
	f.mu.Unlock()
	return re
}

// KeywordFilter applies the block and require keyword lists. Blocked keywords
// reject the message; when require keywords are set at least one must appear.
func KeywordFilter() Filter {
	return FilterFunc("keywords", func(rule domain.ForwardingRule, msg domain.InboundMessage) bool {
		f := rule.Filters
		if len(f.RequireKeywords) == 0 && len(f.BlockKeywords) == 0 {
			return true
		}
		text := msg.Text
		if !f.CaseSensitive {
			text = strings.ToLower(text)
		}

		var words map[string]bool
		if f.WholeWord {
			words = make(map[string]bool)
			for _, w := range strings.FieldsFunc(text, isWordSeparator) {
				words[w] = true
			}
		}
		contains := func(keyword string) bool {
			if !f.CaseSensitive {
				keyword = strings.ToLower(keyword)
			}
			if keyword == "" {
				return false
			}
			if f.WholeWord {
				return words[keyword]
			}
			return strings.Contains(text, keyword)
		}

		for _, k := range f.BlockKeywords {
			if contains(k) {
				return false
			}
		}
		if len(f.RequireKeywords) == 0 {
			return true
		}
		for _, k := range f.RequireKeywords {
			if contains(k) {
				return true
			}
		}
		return false
	})
}

func isWordSeparator(r rune) bool {
	return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '\'' && r != '-' && r != '_')
}

// LengthFilter bounds the message text length, counted in characters.
func LengthFilter() Filter {
	return FilterFunc("length", func(rule domain.ForwardingRule, msg domain.InboundMessage) bool {
		n := utf8.RuneCountInString(msg.Text)
		if lo := rule.Filters.MinLength; lo != nil && n < *lo {
			return false
		}
		if hi := rule.Filters.MaxLength; hi != nil && n > *hi {
			return false
		}
		return true
	})
}
