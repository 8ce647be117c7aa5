// Package chunker divides oversized documents into independently embeddable
// facts for bulk import. Splitting happens before insertion; the store still
// rejects any single text over the embedder's input limit.
package chunker

import (
	"strings"
)

const (
	DefaultTargetSize = 400
	DefaultMaxSize    = 600
)

// Options configure splitting. TargetSize is the preferred fact length in
// bytes; MaxSize is the hard ceiling a fact never exceeds.
type Options struct {
	TargetSize int
	MaxSize    int
}

func DefaultOptions() Options {
	return Options{TargetSize: DefaultTargetSize, MaxSize: DefaultMaxSize}
}

// Fact is one split piece with its position in the source document.
type Fact struct {
	Text      string
	StartLine int
	EndLine   int
}

// Split divides text into facts on heading and paragraph boundaries, merging
// neighbors up to TargetSize. Text at or under MaxSize comes back whole.
func Split(text string, opts Options) []Fact {
	if opts.TargetSize <= 0 {
		opts.TargetSize = DefaultTargetSize
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.MaxSize < opts.TargetSize {
		opts.TargetSize = opts.MaxSize
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= opts.MaxSize {
		return []Fact{{Text: text, StartLine: 1, EndLine: strings.Count(text, "\n") + 1}}
	}

	return pack(sections(text), opts)
}

// section is a heading- or paragraph-delimited span of the source.
type section struct {
	text      string
	startLine int
	endLine   int
}

// sections cuts text on heading lines and blank-line paragraph breaks.
func sections(text string) []section {
	lines := strings.Split(text, "\n")
	var out []section
	var current []string
	startLine := 1

	flush := func(endLine int) {
		if len(current) == 0 {
			return
		}
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			out = append(out, section{text: t, startLine: startLine, endLine: endLine})
		}
		current = nil
		startLine = endLine + 1
	}

	prevBlank := false
	for i, line := range lines {
		lineNum := i + 1
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "#") && len(current) > 0 {
			flush(lineNum - 1)
		}
		if trimmed == "" {
			if prevBlank && len(current) > 0 {
				flush(lineNum - 1)
			}
			prevBlank = true
			current = append(current, line)
			continue
		}
		prevBlank = false
		current = append(current, line)
	}
	flush(len(lines))

	return out
}

// pack merges adjacent sections up to TargetSize and line-splits any merged
// run that still exceeds MaxSize.
func pack(secs []section, opts Options) []Fact {
	var facts []Fact
	var accum section

	flush := func() {
		t := strings.TrimSpace(accum.text)
		if t == "" {
			return
		}
		if len(t) > opts.MaxSize {
			facts = append(facts, lineSplit(t, accum.startLine, opts)...)
		} else {
			facts = append(facts, Fact{
				Text:      t,
				StartLine: accum.startLine,
				EndLine:   accum.startLine + strings.Count(t, "\n"),
			})
		}
		accum = section{}
	}

	for _, s := range secs {
		if accum.text == "" {
			accum = s
			continue
		}
		combined := accum.text + "\n\n" + s.text
		if len(combined) <= opts.TargetSize {
			accum.text = combined
			accum.endLine = s.endLine
		} else {
			flush()
			accum = s
		}
	}
	flush()

	return facts
}

// lineSplit breaks a span that exceeds MaxSize on line boundaries.
func lineSplit(text string, startLine int, opts Options) []Fact {
	lines := strings.Split(text, "\n")
	var facts []Fact
	var current []string
	curStart := startLine
	curLen := 0

	emit := func(endLine int) {
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			facts = append(facts, Fact{Text: t, StartLine: curStart, EndLine: endLine})
		}
		current = nil
		curLen = 0
	}

	for i, line := range lines {
		if curLen+len(line) > opts.TargetSize && len(current) > 0 {
			emit(startLine + i - 1)
			curStart = startLine + i
		}
		current = append(current, line)
		curLen += len(line) + 1
	}
	if len(current) > 0 {
		emit(startLine + len(lines) - 1)
	}

	return facts
}
