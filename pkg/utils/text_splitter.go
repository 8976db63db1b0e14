package utils

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	sentenceTerminators = "。！？.!?"
	clauseSeparators    = "，,；;：:"
)

// SplitMessage cuts text into ordered chunks of at most maxLength runes so that
// chat transports with a size limit can deliver it. Split points are searched
// backwards from the limit in priority order: paragraph break, line break,
// sentence terminator, clause separator, space, and finally a hard cut. The
// delimiter stays with the preceding chunk. Chunks are trimmed and empty ones
// dropped, so only whitespace is ever lost.
func SplitMessage(text string, maxLength int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if maxLength <= 0 {
		return []string{trimmed}
	}

	var chunks []string
	remaining := []rune(text)

	for len(remaining) > maxLength {
		cut := findSplitPoint(remaining, maxLength)
		if chunk := strings.TrimSpace(string(remaining[:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = remaining[cut:]
	}

	if chunk := strings.TrimSpace(string(remaining)); chunk != "" {
		chunks = append(chunks, chunk)
	}

	return chunks
}

// findSplitPoint returns the number of runes that go into the next chunk.
func findSplitPoint(runes []rune, maxLength int) int {
	window := runes[:maxLength]
	half := maxLength / 2

	// Paragraph break, accepted from a third of the window onwards
	for i := maxLength - 2; i >= maxLength/3 && i >= 0; i-- {
		if window[i] == '\n' && window[i+1] == '\n' {
			return i + 2
		}
	}

	if i := lastIndexFrom(window, half, func(r rune) bool { return r == '\n' }); i >= 0 {
		return i + 1
	}
	if i := lastIndexFrom(window, half, isAny(sentenceTerminators)); i >= 0 {
		return i + 1
	}
	if i := lastIndexFrom(window, half, isAny(clauseSeparators)); i >= 0 {
		return i + 1
	}
	if i := lastIndexFrom(window, half, func(r rune) bool { return r == ' ' }); i >= 0 {
		return i + 1
	}

	return maxLength
}

func lastIndexFrom(window []rune, min int, match func(rune) bool) int {
	for i := len(window) - 1; i >= min; i-- {
		if match(window[i]) {
			return i
		}
	}
	return -1
}

func isAny(set string) func(rune) bool {
	return func(r rune) bool { return strings.ContainsRune(set, r) }
}

// LabelParts prefixes every chunk with "(part i of n)" when there is more than one.
func LabelParts(chunks []string) []string {
	if len(chunks) <= 1 {
		return chunks
	}
	labeled := make([]string, len(chunks))
	for i, chunk := range chunks {
		labeled[i] = fmt.Sprintf("(part %d of %d)\n%s", i+1, len(chunks), chunk)
	}
	return labeled
}

// VerifyIntegrity reports whether the chunks carry the same non-whitespace
// content as the original text, along with both lengths.
func VerifyIntegrity(original string, chunks []string) (ok bool, originalLen, joinedLen int) {
	originalLen = len([]rune(StripWhitespace(original)))
	joinedLen = len([]rune(StripWhitespace(strings.Join(chunks, ""))))
	return originalLen == joinedLen, originalLen, joinedLen
}

// StripWhitespace removes every unicode whitespace rune.
func StripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
