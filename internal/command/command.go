// Package command classifies inbound message text into relay commands.
package command

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

type Command int

const (
	// Unclassified text is resolved by sender: broadcast for admins, ignored otherwise.
	Unclassified Command = iota
	Subscribe
	Unsubscribe
)

func (c Command) String() string {
	switch c {
	case Subscribe:
		return "subscribe"
	case Unsubscribe:
		return "unsubscribe"
	default:
		return "unclassified"
	}
}

var ErrEmptyVocabulary = errors.New("empty keyword set")

// Vocabulary holds the keyword sets a Classifier matches against.
type Vocabulary struct {
	Subscribe   []string
	Unsubscribe []string
}

func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Subscribe:   []string{"start"},
		Unsubscribe: []string{"stop"},
	}
}

// Classifier maps raw message bodies to commands. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	subscribe   map[string]struct{}
	unsubscribe map[string]struct{}
}

func NewClassifier(v Vocabulary) (*Classifier, error) {
	sub, err := keywordSet(v.Subscribe)
	if err != nil {
		return nil, fmt.Errorf("subscribe keywords: %w", err)
	}
	unsub, err := keywordSet(v.Unsubscribe)
	if err != nil {
		return nil, fmt.Errorf("unsubscribe keywords: %w", err)
	}
	for w := range sub {
		if _, ok := unsub[w]; ok {
			return nil, fmt.Errorf("keyword %q is both subscribe and unsubscribe", w)
		}
	}
	return &Classifier{subscribe: sub, unsubscribe: unsub}, nil
}

// Classify trims and case-folds body, then looks for an exact keyword match.
// "START" and " start " subscribe; "started" and "restart" do not.
func (c *Classifier) Classify(body string) Command {
	w := normalize(body)
	if _, ok := c.subscribe[w]; ok {
		return Subscribe
	}
	if _, ok := c.unsubscribe[w]; ok {
		return Unsubscribe
	}
	return Unclassified
}

func keywordSet(words []string) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w = normalize(w); w != "" {
			set[w] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil, ErrEmptyVocabulary
	}
	return set, nil
}

func normalize(s string) string {
	// cases.Caser keeps state, so a fresh one per call
	return cases.Fold().String(strings.TrimSpace(s))
}
