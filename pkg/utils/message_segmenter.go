package utils

import (
	"repoinsight/internal/pkg/logger"
)

// Segmenter splits outbound replies that exceed the transport limit.
type Segmenter struct {
	maxLength int
	logger    logger.ILogger
}

func NewSegmenter(maxLength int, log logger.ILogger) *Segmenter {
	return &Segmenter{maxLength: maxLength, logger: log}
}

// Segment returns the transport-ready parts of text. A content mismatch is
// logged and the parts are still returned.
func (s *Segmenter) Segment(text string) []string {
	chunks := SplitMessage(text, s.maxLength)

	if ok, originalLen, joinedLen := VerifyIntegrity(text, chunks); !ok {
		s.logger.Warn("Segmenter", "Segmented message lost content", map[string]interface{}{
			"original_length": originalLen,
			"joined_length":   joinedLen,
			"chunks":          len(chunks),
		})
	}

	if len(chunks) > 1 {
		s.logger.Debug("Segmenter", "Message split into parts", map[string]interface{}{
			"parts":      len(chunks),
			"max_length": s.maxLength,
		})
	}

	return LabelParts(chunks)
}
