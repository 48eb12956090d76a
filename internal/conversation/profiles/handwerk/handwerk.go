// Package handwerk is the conversation Profile for German-speaking
// trades (Handwerk) businesses: plumbing/heating, electrical,
// sanitary, locksmith, and general repair calls.
//
// The emergency phrase list and slot schema are grounded on
// original_source/src/phone_agent/industry/handwerk/triage.py's
// EMERGENCY_PATTERNS dictionary (the same phrases the Triage Engine's
// DefaultVersion rule table uses for its top-tier rules), reused here
// as the Conversation SM's own emergency short-circuit so the two
// components agree on what counts as an emergency.
package handwerk

import (
	"regexp"
	"strings"

	"github.com/fieldopsvoice/dispatch/internal/conversation"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

var phoneRe = regexp.MustCompile(`(?:\+?\d[\d \-/]{5,}\d)`)
var postalRe = regexp.MustCompile(`\b\d{5}\b`)

// New returns the Handwerk profile.
func New() conversation.Profile {
	return conversation.Profile{
		Name:     "handwerk",
		Language: "de",
		SystemPrompt: "Du bist ein freundlicher, sachlicher Telefonassistent für einen Handwerksbetrieb. " +
			"Antworte immer auf Deutsch, in höflicher Anrede (Sie), in höchstens drei kurzen Sätzen.",
		Greeting:           "Guten Tag, hier ist der Service-Assistent. Wie kann ich Ihnen helfen?",
		ConfirmationPrompt: "Ich habe alle Angaben. Soll ich den Auftrag jetzt anlegen?",
		EmergencyPhrases: []string{
			"gasgeruch", "gasleck", "riecht nach gas", "gasaustritt",
			"wasserrohrbruch", "rohr geplatzt", "überschwemmung",
			"kabel brennt", "elektrobrand", "kurzschluss", "funken sprühen",
			"einsturz", "decke stürzt", "statik gefahr",
			"kind eingesperrt", "person eingeschlossen gefahr",
		},
		IntentRules: []conversation.IntentRule{
			{Intent: "cancellation", Priority: 80, Keywords: []string{"stornieren", "abbrechen", "doch nicht", "vergessen sie es"}},
			{Intent: "confirm", Priority: 60, Keywords: []string{"ja", "genau", "richtig", "passt", "bitte anlegen"}},
			{Intent: "query", Priority: 40, Keywords: []string{"wie lange", "was kostet", "wann kommt"}},
			{Intent: "chitchat", Priority: 10, Keywords: []string{"danke", "guten tag", "wie geht es ihnen"}},
		},
		Slots: []conversation.SlotSpec{
			{Name: "name", Prompt: "Wie ist Ihr Name?", Required: true, Extract: extractNoop},
			{Name: "phone", Prompt: "Unter welcher Telefonnummer sind Sie erreichbar?", Required: true, Extract: extractPhone},
			{Name: "address", Prompt: "Wie lautet die Adresse, an der das Problem auftritt?", Required: true, Extract: extractAddress},
			{Name: "problem_description", Prompt: "Beschreiben Sie bitte kurz das Problem.", Required: true, Extract: extractNoop},
			{Name: "preferred_time", Prompt: "Haben Sie einen bevorzugten Termin?", Required: false, Extract: extractNoop},
		},
		DefaultCategory: models.TradeGeneral,
	}
}

// extractNoop hands the raw utterance straight through; the slots it
// backs (name, free-text problem description) have no reliable
// pattern to extract and are captured as whatever the caller said
// in response to that slot's prompt — the Conversation SM only calls
// Extract while that slot is still outstanding.
func extractNoop(text string) (string, bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return "", false
	}
	return t, true
}

func extractPhone(text string) (string, bool) {
	if m := phoneRe.FindString(text); m != "" {
		return strings.TrimSpace(m), true
	}
	return "", false
}

func extractAddress(text string) (string, bool) {
	if postalRe.MatchString(text) {
		return strings.TrimSpace(text), true
	}
	return "", false
}
