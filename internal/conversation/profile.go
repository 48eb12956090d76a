package conversation

import (
	"strings"

	"github.com/fieldopsvoice/dispatch/internal/models"
)

// IntentRule is a keyword/phrase rule with an explicit tie-break
// priority, per §4.4's "rules have explicit priority; emergency >
// cancellation > new-request > query > chitchat".
type IntentRule struct {
	Intent   string
	Priority int
	Keywords []string
}

// SlotSpec describes one profile slot: its prompt and a best-effort
// extractor run against the raw utterance text.
type SlotSpec struct {
	Name     string
	Prompt   string
	Required bool
	Extract  func(text string) (string, bool)
}

// Profile is an industry conversation plug-in: a capability set, not a
// base class to subclass, per §4.4's closing paragraph and §9's design
// note on profile composition.
type Profile struct {
	Name               string
	Language           string
	SystemPrompt       string
	EmergencyPhrases   []string
	IntentRules        []IntentRule
	Slots              []SlotSpec
	DefaultCategory    models.TradeCategory
	Greeting           string
	ConfirmationPrompt string
	Templates          map[string]string
}

// DetectEmergency reports whether text contains any emergency trigger
// phrase (§4.4 step 4).
func (p Profile) DetectEmergency(text string) (bool, string) {
	lower := strings.ToLower(text)
	for _, phrase := range p.EmergencyPhrases {
		if strings.Contains(lower, phrase) {
			return true, phrase
		}
	}
	return false, ""
}

// DetectIntent implements §4.4 step 3's rule-based pass: every rule is
// checked and the matching rule with the highest Priority wins; on equal
// priority the earlier-listed rule wins.
// ok is false when no rule matched the utterance, signaling the caller
// to fall back to the LLM for ambiguous classification.
func (p Profile) DetectIntent(text string) (intent string, ok bool) {
	lower := strings.ToLower(text)
	best := -1
	for _, r := range p.IntentRules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				if r.Priority > best {
					best = r.Priority
					intent = r.Intent
				}
				break
			}
		}
	}
	return intent, best >= 0
}

// MissingRequiredSlot returns the first required slot, in declaration
// order, that has no value, and true; it returns SlotSpec{}, false when
// all are filled (§4.4 step 5).
func (p Profile) MissingRequiredSlot(filled models.SlotValues) (SlotSpec, bool) {
	for _, s := range p.Slots {
		if !s.Required {
			continue
		}
		if _, ok := filled[s.Name]; !ok {
			return s, true
		}
	}
	return SlotSpec{}, false
}

// SlotsComplete reports whether every required slot has a value.
func (p Profile) SlotsComplete(filled models.SlotValues) bool {
	_, missing := p.MissingRequiredSlot(filled)
	return !missing
}

// ExtractSlots runs the extractor for the single slot currently being
// prompted for — "each state prompts for the most-important
// outstanding slot" (§4.4 step 5) — against text, merging a captured
// value into filled. Running every outstanding slot's extractor
// against the same utterance would let a loosely-matching extractor
// (e.g. a free-text fallback) steal text meant for a later slot.
func (p Profile) ExtractSlots(text string, filled models.SlotValues) {
	target, ok := p.MissingRequiredSlot(filled)
	if !ok || target.Extract == nil {
		return
	}
	if v, ok := target.Extract(text); ok && v != "" {
		filled[target.Name] = v
	}
}
