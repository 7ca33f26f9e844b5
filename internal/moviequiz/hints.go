package moviequiz

import (
	"fmt"
	"strings"
)

// Tier is one category of textual hint. Values are ordered by reveal order.
type Tier int

const (
	TierDialogue Tier = iota
	TierEmoji
	TierTrivia
	TierLocation
)

func Tiers() []Tier {
	return []Tier{TierDialogue, TierEmoji, TierTrivia, TierLocation}
}

func (t Tier) String() string {
	switch t {
	case TierDialogue:
		return "dialogue"
	case TierEmoji:
		return "emoji"
	case TierTrivia:
		return "trivia"
	case TierLocation:
		return "location"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

const (
	HintSourceCurated   = "curated"
	HintSourceGenerated = "generated"
)

type HintSet struct {
	Dialogue string `json:"dialogue"`
	Emoji    string `json:"emoji"`
	Trivia   string `json:"trivia"`
	Location string `json:"location"`
	Source   string `json:"source,omitempty"`
}

func (h HintSet) Text(t Tier) string {
	switch t {
	case TierDialogue:
		return h.Dialogue
	case TierEmoji:
		return h.Emoji
	case TierTrivia:
		return h.Trivia
	case TierLocation:
		return h.Location
	}
	return ""
}

// Validate enforces the non-placeholder invariant: every tier is present
// and none of them is known stub text.
func (h HintSet) Validate() error {
	for _, t := range Tiers() {
		if !Usable(h.Text(t)) {
			return fmt.Errorf("%s hint is empty or a placeholder", t)
		}
	}
	return nil
}

// Usable reports whether text can be shown to a player.
func Usable(text string) bool {
	return strings.TrimSpace(text) != "" && !IsPlaceholder(text)
}

var placeholderPhrases = []string{
	"a memorable moment from this",
	"a famous line from this",
	"an iconic scene from this",
	"hint unavailable",
	"no hint available",
	"lorem ipsum",
	"placeholder",
	"coming soon",
}

var placeholderExact = map[string]bool{
	"tbd": true,
	"n/a": true,
	"na":  true,
	"-":   true,
	"?":   true,
	"...": true,
}

// IsPlaceholder recognises the stub text that fallback generators emit
// when they have nothing real to say.
func IsPlaceholder(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if placeholderExact[t] {
		return true
	}
	for _, p := range placeholderPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}
