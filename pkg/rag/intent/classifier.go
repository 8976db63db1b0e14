package intent

import (
	"regexp"
	"strings"
)

// Kind is what an inbound message means before session state is considered.
type Kind string

const (
	KindEmpty         Kind = "EMPTY"
	KindExit          Kind = "EXIT"
	KindSwitch        Kind = "SWITCH"
	KindStart         Kind = "START"
	KindStatus        Kind = "STATUS"
	KindConfig        Kind = "CONFIG"
	KindRepositoryURL Kind = "REPOSITORY_URL"
	KindQuestion      Kind = "QUESTION"
)

// Host commands inherited from the chat plugin surface.
const (
	CommandStart  = "repo_qa"
	CommandStatus = "repo_status"
	CommandConfig = "repo_config"
)

// ExampleRepositoryURL is shown whenever a URL is rejected.
const ExampleRepositoryURL = "https://github.com/user/repo"

var githubRepoPattern = regexp.MustCompile(`^https://github\.com/[\w.-]+/[\w.-]+/?$`)

// IsValidRepositoryURL reports whether url names a GitHub repository root.
func IsValidRepositoryURL(url string) bool {
	return githubRepoPattern.MatchString(url)
}

// Input is a classified message.
type Input struct {
	Kind Kind
	Text string // trimmed message text
}

// Classifier turns raw text into an Input exactly once per message.
type Classifier struct {
	exitKeywords   map[string]struct{}
	switchCommands map[string]struct{}
}

func NewClassifier(exitKeywords, switchCommands []string) *Classifier {
	return &Classifier{
		exitKeywords:   toSet(exitKeywords),
		switchCommands: toSet(switchCommands),
	}
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return set
}

// Classify checks, in order: empty, exit keyword, switch token, host command,
// repository URL. Anything else is a question.
func (c *Classifier) Classify(raw string) Input {
	text := strings.TrimSpace(raw)
	lower := strings.ToLower(text)

	if text == "" {
		return Input{Kind: KindEmpty}
	}
	if _, ok := c.exitKeywords[lower]; ok {
		return Input{Kind: KindExit, Text: text}
	}
	if _, ok := c.switchCommands[lower]; ok {
		return Input{Kind: KindSwitch, Text: text}
	}

	switch strings.TrimPrefix(lower, "/") {
	case CommandStart:
		return Input{Kind: KindStart, Text: text}
	case CommandStatus:
		return Input{Kind: KindStatus, Text: text}
	case CommandConfig:
		return Input{Kind: KindConfig, Text: text}
	}

	if IsValidRepositoryURL(text) {
		return Input{Kind: KindRepositoryURL, Text: text}
	}

	return Input{Kind: KindQuestion, Text: text}
}
