// Package ignore matches document paths against .onedeskignore patterns.
//
// The syntax follows gitignore: "*" and "?" stay within one path segment,
// "**/" spans directories, a leading "/" anchors to the folder root, a
// trailing "/" matches directories only and "!" re-includes a path. The
// last matching pattern wins.
//
//	drafts/
//	*.bak.pdf
//	!drafts/approved.pdf
package ignore

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FileName is the ignore file read from the root of an ingested folder.
const FileName = ".onedeskignore"

// Matcher holds compiled patterns. It is immutable after loading and safe
// for concurrent use.
type Matcher struct {
	rules []rule
}

type rule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
}

// New compiles patterns. Blank lines and "#" comments are skipped.
func New(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		m.add(p)
	}
	return m
}

// Load reads dir/.onedeskignore. A missing file yields an empty matcher.
func Load(dir string) (*Matcher, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(), nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	m := &Matcher{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.add(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// Len returns the number of active patterns.
func (m *Matcher) Len() int { return len(m.rules) }

func (m *Matcher) add(line string) {
	p := strings.TrimRight(line, " \t\r")
	if strings.HasSuffix(p, `\`) && strings.HasSuffix(line, " ") {
		p = strings.TrimSuffix(p, `\`) + " "
	}
	p = strings.TrimLeft(p, " \t")
	if p == "" || strings.HasPrefix(p, "#") {
		return
	}

	var r rule
	switch {
	case strings.HasPrefix(p, `\#`), strings.HasPrefix(p, `\!`):
		p = p[1:]
	case strings.HasPrefix(p, "!"):
		r.negate = true
		p = p[1:]
	}
	if strings.HasSuffix(p, "/") {
		r.dirOnly = true
		p = strings.TrimSuffix(p, "/")
	}
	if strings.HasPrefix(p, "/") {
		r.anchored = true
		p = strings.TrimPrefix(p, "/")
	} else if strings.Contains(p, "/") && !strings.HasPrefix(p, "**/") {
		r.anchored = true
	}
	if p == "" {
		return
	}
	re, err := regexp.Compile("^" + toRegexp(p) + "$")
	if err != nil {
		// Malformed character classes never match.
		return
	}
	r.re = re
	m.rules = append(m.rules, r)
}

// Match reports whether rel, a slash or OS separated path relative to the
// folder root, is ignored.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil || len(m.rules) == 0 {
		return false
	}
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	parts := strings.Split(rel, "/")

	ignored := false
	for _, r := range m.rules {
		if r.matches(rel, parts, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r rule) matches(rel string, parts []string, isDir bool) bool {
	last := len(parts) - 1

	if r.anchored {
		if r.re.MatchString(rel) {
			return !r.dirOnly || isDir
		}
		// A matched parent directory covers everything below it.
		for i := 0; i < last; i++ {
			if r.re.MatchString(strings.Join(parts[:i+1], "/")) {
				return true
			}
		}
		return false
	}

	for i, part := range parts {
		if !r.re.MatchString(part) {
			continue
		}
		if i < last {
			return true
		}
		return !r.dirOnly || isDir
	}
	return !r.dirOnly && r.re.MatchString(rel)
}

func toRegexp(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch c {
		case '*':
			if i+1 < len(p) && p[i+1] == '*' {
				if i+2 < len(p) && p[i+2] == '/' {
					b.WriteString("(?:.*/)?")
					i += 2
					continue
				}
				if i == 0 || p[i-1] == '/' {
					b.WriteString(".*")
					i++
					continue
				}
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(p[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			b.WriteString(p[i : i+end+2])
			i += end + 1
		case '\\':
			if i+1 < len(p) {
				i++
				b.WriteString(regexp.QuoteMeta(string(p[i])))
			} else {
				b.WriteString(`\\`)
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
