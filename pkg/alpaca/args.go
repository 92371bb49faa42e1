package alpaca

import (
	"net/url"
	"strings"
)

// MatchMode selects how Args compares argument names.
type MatchMode int

const (
	// MatchExact compares names byte for byte.
	MatchExact MatchMode = iota
	// MatchFold compares names ignoring case.
	MatchFold
)

// Arg is a single request argument, taken from the query string or a form body.
type Arg struct {
	Name  string
	Value string
}

// Args holds the arguments of one request in the order the client sent them.
// Names keep their original case.
type Args []Arg

// Len returns the number of arguments.
func (a Args) Len() int {
	return len(a)
}

// Name returns the name of the i-th argument, or "" when i is out of range.
func (a Args) Name(i int) string {
	if i < 0 || i >= len(a) {
		return ""
	}
	return a[i].Name
}

// At returns the value of the i-th argument, or "" when i is out of range.
func (a Args) At(i int) string {
	if i < 0 || i >= len(a) {
		return ""
	}
	return a[i].Value
}

// Lookup scans every argument and returns the first value whose name matches.
func (a Args) Lookup(name string, mode MatchMode) (string, bool) {
	for _, arg := range a {
		switch mode {
		case MatchFold:
			if strings.EqualFold(arg.Name, name) {
				return arg.Value, true
			}
		default:
			if arg.Name == name {
				return arg.Value, true
			}
		}
	}
	return "", false
}

// Get returns the value of the argument with exactly this name, or "".
func (a Args) Get(name string) string {
	v, _ := a.Lookup(name, MatchExact)
	return v
}

// GetFold returns the value of the first argument whose name matches
// ignoring case, or "" when nothing matches.
func (a Args) GetFold(name string) string {
	v, _ := a.Lookup(name, MatchFold)
	return v
}

// Resolve tries an exact match first and falls back to a case-insensitive one.
func (a Args) Resolve(name string) (string, bool) {
	if v, ok := a.Lookup(name, MatchExact); ok {
		return v, true
	}
	return a.Lookup(name, MatchFold)
}

// parseArgs decodes an URL-encoded string keeping the argument order.
// Malformed pairs are skipped.
func parseArgs(raw string) Args {
	var args Args
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}

		name, value, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(name)
		if err != nil || name == "" {
			continue
		}
		value, err = url.QueryUnescape(value)
		if err != nil {
			continue
		}
		args = append(args, Arg{Name: name, Value: value})
	}
	return args
}
