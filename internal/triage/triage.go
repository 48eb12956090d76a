// Package triage implements the pure Triage / Intake Engine (§4.5): given
// a free-text description and an optional structured context, it returns
// an urgency bucket, a trade category, a recommended action, and the
// reasoning (triggered rule names) behind the call.
//
// The engine does no I/O beyond reading its own rule tables, and is
// deterministic: identical inputs always yield identical outputs (§8
// "Triage determinism"). Rule tables are versioned; changing the active
// version never retroactively alters already-committed Jobs.
//
// The pattern tables and context-modifier shape are grounded on
// original_source's industry/handwerk/triage.py (EMERGENCY_PATTERNS,
// VERY_URGENT_PATTERNS, URGENT_PATTERNS, CustomerContext risk
// multipliers, CATEGORY_KEYWORDS) — carried over as Go data, not
// transliterated; the bucket thresholds follow the spec's own fixed
// scheme (≥80 emergency, 60-79 urgent, 30-59 normal, <30 routine) since
// that differs from the original's ad hoc early-return scheme.
package triage

import (
	"sort"
	"strings"

	"github.com/fieldopsvoice/dispatch/internal/models"
)

// Context carries the modifiers §4.5 step 4 applies to the score:
// vulnerable occupants, property type, out-of-hours timing.
type Context struct {
	VeryYoung     bool
	VeryOld       bool
	Pregnancy     bool
	Commercial    bool
	Vulnerability bool
	OutOfHours    bool
	TenantPreferredCategory models.TradeCategory
}

// Result is the triage evaluation's output (§4.5).
type Result struct {
	Urgency          models.Urgency
	Category         models.TradeCategory
	RecommendedAction string
	Score            float64
	Reasoning        []string
}

// Rule is one (pattern set → partial assignment) entry in the ordered
// rule table, per §4.5 step 2.
type Rule struct {
	Name     string
	Keywords []string
	Score    float64
	Category models.TradeCategory
}

// Version pins a rule table to an integer so that processed Jobs are
// never retroactively reinterpreted by a later table (§4.5 "reprocessing
// immunity").
type Version struct {
	Number  int
	Rules   []Rule
	Categories map[models.TradeCategory][]string
}

// DefaultVersion is the built-in German-language Handwerk (trades) rule
// table, grounded on original_source's EMERGENCY/VERY_URGENT/URGENT
// pattern dictionaries.
var DefaultVersion = Version{
	Number: 1,
	Rules: []Rule{
		{Name: "gas_leak", Score: 100, Category: models.TradePlumbingHeating, Keywords: []string{
			"gasgeruch", "gasleck", "gas riecht", "gasaustritt", "gas strömt", "riecht nach gas", "zischen gas", "gaswarnmelder",
		}},
		{Name: "water_main_break", Score: 100, Category: models.TradePlumbingHeating, Keywords: []string{
			"wasserrohrbruch", "rohr geplatzt", "rohr ist geplatzt", "wasser spritzt", "hauptleitung", "überschwemmung", "wasser läuft unkontrolliert",
		}},
		{Name: "electrical_fire", Score: 100, Category: models.TradeElectrical, Keywords: []string{
			"kabel brennt", "steckdose raucht", "elektrobrand", "kurzschluss", "funken sprühen", "qualm steckdose", "brandgeruch elektrik",
		}},
		{Name: "structural_danger", Score: 100, Category: models.TradeConstruction, Keywords: []string{
			"decke stürzt", "einsturz", "riss wand groß", "statik gefahr", "wand bewegt",
		}},
		{Name: "locked_in_danger", Score: 100, Category: models.TradeLocksmith, Keywords: []string{
			"kind eingesperrt", "baby allein", "herd an eingesperrt", "person eingeschlossen gefahr", "hilfe eingesperrt",
		}},
		{Name: "no_heating_cold", Score: 65, Category: models.TradePlumbingHeating, Keywords: []string{
			"keine heizung", "heizung aus", "frieren", "kalt wohnung", "heizung komplett ausgefallen", "heizung ausgefallen", "eiskalt", "heizung defekt",
		}},
		{Name: "major_water_leak", Score: 65, Category: models.TradePlumbingHeating, Keywords: []string{
			"wasser tropft stark", "großes leck", "überschwemmt", "keller unter wasser",
		}},
		{Name: "no_power", Score: 65, Category: models.TradeElectrical, Keywords: []string{
			"kein strom komplett", "stromausfall haus", "fi lässt sich nicht einschalten",
		}},
		{Name: "locked_out", Score: 62, Category: models.TradeLocksmith, Keywords: []string{
			"ausgesperrt", "schlüssel drinnen", "tür zugefallen", "nicht mehr reinkommen",
		}},
		{Name: "toilet_blocked", Score: 45, Category: models.TradeSanitary, Keywords: []string{
			"toilette verstopft", "wc verstopft", "klo geht nicht", "abfluss verstopft", "komplett verstopft",
		}},
		{Name: "no_hot_water", Score: 40, Category: models.TradePlumbingHeating, Keywords: []string{
			"kein warmwasser", "boiler kaputt", "therme defekt", "durchlauferhitzer funktioniert nicht",
		}},
		{Name: "heating_problems", Score: 35, Category: models.TradePlumbingHeating, Keywords: []string{
			"heizung funktioniert nicht richtig", "heizung macht geräusche", "heizkörper wird nicht warm",
		}},
		{Name: "electrical_issues", Score: 35, Category: models.TradeElectrical, Keywords: []string{
			"steckdose funktioniert nicht", "sicherung fliegt raus", "fi schalter",
		}},
	},
	Categories: map[models.TradeCategory][]string{
		models.TradeSanitary: {
			"wasser", "rohr", "abfluss", "toilette", "wc", "waschbecken", "spüle", "siphon", "wasserhahn", "armatur", "dusche", "badewanne",
		},
		models.TradePlumbingHeating: {
			"heizung", "heizkörper", "therme", "gastherme", "kessel", "brenner", "thermostat", "warmwasser", "boiler", "fußbodenheizung", "klima", "klimaanlage", "lüftung",
		},
		models.TradeElectrical: {
			"strom", "steckdose", "schalter", "licht", "lampe", "sicherung", "fi", "kabel", "leitung", "elektrisch",
		},
		models.TradeLocksmith: {
			"schlüssel", "schloss", "tür", "ausgesperrt", "eingesperrt", "aufschließen", "zylinder", "schließanlage",
		},
		models.TradeRoofing: {
			"dach", "ziegel", "dachrinne", "regenrinne", "schornstein", "dachfenster", "dachstuhl",
		},
		models.TradePainting: {
			"streichen", "farbe", "tapete", "wand", "anstrich", "lackieren", "schimmel wand",
		},
		models.TradeCarpentry: {
			"holz", "möbel", "schrank", "parkett", "laminat", "treppe",
		},
		models.TradeConstruction: {
			"beton", "maurer", "estrich", "fundament", "mauer", "putz", "fassade",
		},
	},
}

// normalize folds case only; diacritics are neither stripped nor
// substituted, since the keyword tables carry the umlauts they match
// against.
func normalize(s string) string {
	return strings.ToLower(s)
}

// Assess runs the §4.5 algorithm: tokenize/normalize, evaluate the rule
// table, accumulate urgency score and category histogram, apply context
// modifiers, map to a bucket, and resolve the category by plurality.
func Assess(version Version, description string, ctx Context) Result {
	text := normalize(description)

	var reasoning []string
	histogram := map[models.TradeCategory]int{}
	score := 0.0

	for _, rule := range version.Rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				score += rule.Score
				histogram[rule.Category]++
				reasoning = append(reasoning, rule.Name)
				break
			}
		}
	}

	if len(reasoning) == 0 && description != "" {
		score += 20 // minimum base score when free text was supplied but matched no rule, per original's base_score=20 floor
	}

	score *= riskMultiplier(ctx)
	if score > 99 {
		score = 99
	}
	if len(reasoning) > 0 {
		// emergency-tier matches short-circuit to the ceiling regardless
		// of multiplier capping, matching the "always escalate
		// immediately" emergency-pattern behavior.
		for _, name := range reasoning {
			if isEmergencyRule(version, name) {
				score = 100
				break
			}
		}
	}

	category := resolveCategory(version, histogram, text, ctx.TenantPreferredCategory)
	urgency := bucketFor(score)

	return Result{
		Urgency:           urgency,
		Category:          category,
		RecommendedAction: recommendedAction(urgency),
		Score:             score,
		Reasoning:         reasoning,
	}
}

func isEmergencyRule(v Version, name string) bool {
	for _, r := range v.Rules {
		if r.Name == name {
			return r.Score >= 100
		}
	}
	return false
}

// riskMultiplier implements §4.5 step 4's context modifiers, grounded on
// original_source CustomerContext.calculate_risk_multiplier (capped 2x).
func riskMultiplier(ctx Context) float64 {
	m := 1.0
	if ctx.VeryYoung {
		m *= 1.3
	}
	if ctx.VeryOld {
		m *= 1.2
	}
	if ctx.Pregnancy {
		m *= 1.2
	}
	if ctx.Vulnerability {
		m *= 1.2
	}
	if ctx.Commercial {
		m *= 1.1
	}
	if ctx.OutOfHours {
		m *= 1.1
	}
	if m > 2.0 {
		m = 2.0
	}
	return m
}

// bucketFor maps a final score to an urgency per §4.5 step 5's fixed
// thresholds.
func bucketFor(score float64) models.Urgency {
	switch {
	case score >= 80:
		return models.UrgencyEmergency
	case score >= 60:
		return models.UrgencyUrgent
	case score >= 30:
		return models.UrgencyNormal
	default:
		return models.UrgencyRoutine
	}
}

// resolveCategory picks the plurality category from the rule histogram;
// ties break by tenant preference, then "general", per §4.5 step 6.
func resolveCategory(v Version, histogram map[models.TradeCategory]int, text string, preferred models.TradeCategory) models.TradeCategory {
	if len(histogram) > 0 {
		type pair struct {
			cat   models.TradeCategory
			count int
		}
		var pairs []pair
		for c, n := range histogram {
			pairs = append(pairs, pair{c, n})
		}
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i].count != pairs[j].count {
				return pairs[i].count > pairs[j].count
			}
			return pairs[i].cat < pairs[j].cat
		})
		top := pairs[0].count
		var tied []models.TradeCategory
		for _, p := range pairs {
			if p.count == top {
				tied = append(tied, p.cat)
			}
		}
		if len(tied) == 1 {
			return tied[0]
		}
		for _, c := range tied {
			if c == preferred {
				return c
			}
		}
		return models.TradeGeneral
	}

	// fall back to keyword-based category detection against the full
	// keyword table, independent of which (if any) urgency rule matched.
	best := models.TradeGeneral
	bestCount := 0
	for cat, keywords := range v.Categories {
		count := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				count++
			}
		}
		if count > bestCount || (count > 0 && count == bestCount && cat < best) {
			best, bestCount = cat, count
		}
	}
	if bestCount == 0 {
		if preferred != "" {
			return preferred
		}
		return models.TradeGeneral
	}
	return best
}

func recommendedAction(u models.Urgency) string {
	switch u {
	case models.UrgencyEmergency:
		return "dispatch immediately; attempt transfer to emergency contact"
	case models.UrgencyUrgent:
		return "dispatch within 8 hours"
	case models.UrgencyNormal:
		return "schedule within 48 hours"
	default:
		return "schedule at customer convenience"
	}
}
