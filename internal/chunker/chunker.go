// Package chunker splits normalized document text into bounded fragments
// suitable for embedding and retrieval.
//
// Two policies are available:
//
//	sentence  packs whole sentences into fragments of at most MaxSize
//	          characters, without overlap (default)
//	words     slides a window of WindowWords words with Overlap words
//	          shared between neighbouring fragments
//
// The policies are not interchangeable: sentence packing covers every piece
// of the input exactly once, while the word window repeats the overlap.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Policy selects the fragmenting strategy.
type Policy string

const (
	// PolicySentence packs sentences greedily up to MaxSize characters.
	PolicySentence Policy = "sentence"
	// PolicyWordWindow emits overlapping windows of words.
	PolicyWordWindow Policy = "words"
)

// Defaults applied by [New] for zero-valued config fields.
const (
	DefaultMaxSize     = 1000
	DefaultWindowWords = 500
	DefaultOverlap     = 50
)

// Chunker splits text into an ordered sequence of non-empty fragments.
type Chunker interface {
	Chunk(text string) []string
}

// Config selects and parameterises a chunking policy.
type Config struct {
	// Policy selects the strategy. Empty means PolicySentence.
	Policy Policy

	// MaxSize is the target maximum fragment length in characters for the
	// sentence policy.
	MaxSize int

	// WindowWords is the window length for the word policy.
	WindowWords int

	// Overlap is the number of words shared by consecutive windows.
	Overlap int
}

// New returns the Chunker described by cfg.
func New(cfg Config) (Chunker, error) {
	switch cfg.Policy {
	case "", PolicySentence:
		return NewSentenceChunker(cfg.MaxSize), nil
	case PolicyWordWindow:
		return NewWordWindowChunker(cfg.WindowWords, cfg.Overlap), nil
	default:
		return nil, fmt.Errorf("chunker: unknown policy %q (want %q or %q)", cfg.Policy, PolicySentence, PolicyWordWindow)
	}
}

// Normalize collapses every run of whitespace to a single space and trims
// both ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// SplitSentences breaks text into sentence-like units. A unit ends at '.',
// '!' or '?' when followed by whitespace or the end of input; trailing text
// without terminal punctuation forms the last unit. Units are trimmed and
// never empty.
func SplitSentences(text string) []string {
	var units []string
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i + utf8.RuneLen(r)
		if end < len(text) {
			next, _ := utf8.DecodeRuneInString(text[end:])
			if !unicode.IsSpace(next) {
				continue
			}
		}
		if u := strings.TrimSpace(text[start:end]); u != "" {
			units = append(units, u)
		}
		start = end
	}
	if u := strings.TrimSpace(text[start:]); u != "" {
		units = append(units, u)
	}
	return units
}

// SentenceChunker packs sentences into fragments.
type SentenceChunker struct {
	maxSize int
}

// NewSentenceChunker returns a sentence-packing chunker. maxSize <= 0 uses
// DefaultMaxSize.
func NewSentenceChunker(maxSize int) *SentenceChunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &SentenceChunker{maxSize: maxSize}
}

// Chunk packs the sentences of text greedily. The running length counts the
// single space that joins two units, so a packed fragment never exceeds
// maxSize. A unit longer than maxSize on its own is emitted verbatim.
func (c *SentenceChunker) Chunk(text string) []string {
	units := SplitSentences(Normalize(text))
	if len(units) == 0 {
		return nil
	}

	var (
		fragments []string
		buf       strings.Builder
		bufLen    int
	)
	flush := func() {
		if bufLen > 0 {
			fragments = append(fragments, buf.String())
			buf.Reset()
			bufLen = 0
		}
	}

	for _, u := range units {
		n := utf8.RuneCountInString(u)
		if bufLen > 0 && bufLen+1+n > c.maxSize {
			flush()
		}
		if bufLen > 0 {
			buf.WriteByte(' ')
			bufLen++
		}
		buf.WriteString(u)
		bufLen += n
	}
	flush()

	return fragments
}

// WordWindowChunker emits overlapping windows of words.
type WordWindowChunker struct {
	size    int
	overlap int
}

// NewWordWindowChunker returns a word-window chunker. size <= 0 uses
// DefaultWindowWords and overlap == 0 uses DefaultOverlap. An overlap that
// is negative or not smaller than size is replaced by size/10.
func NewWordWindowChunker(size, overlap int) *WordWindowChunker {
	if size <= 0 {
		size = DefaultWindowWords
	}
	if overlap == 0 {
		overlap = DefaultOverlap
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}
	return &WordWindowChunker{size: size, overlap: overlap}
}

// Chunk returns windows of c.size words advancing by c.size-c.overlap. The
// final window ends at the last word.
func (c *WordWindowChunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var fragments []string
	for start := 0; start < len(words); start += step {
		end := min(start+c.size, len(words))
		fragments = append(fragments, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return fragments
}
