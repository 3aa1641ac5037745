package usecase

import (
	"fmt"
	"strings"
	"unicode"

	"FinPulse/internal/services/features"
	"FinPulse/internal/services/narrative"
)

type offlineIntent int

const (
	intentGeneric offlineIntent = iota
	intentGain
	intentLoss
	intentBest
)

// intentRules are checked in order; the first rule with a matching word wins.
var intentRules = []struct {
	intent   offlineIntent
	prefixes []string
	words    []string
}{
	{intent: intentGain, prefixes: []string{"gain", "rise", "rising", "rose", "surg"}, words: []string{"up"}},
	{intent: intentLoss, prefixes: []string{"los", "fall", "fell", "drop", "declin"}, words: []string{"down"}},
	{intent: intentBest, prefixes: []string{"best", "highest", "top"}},
}

func classify(question string) offlineIntent {
	words := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, rule := range intentRules {
		for _, w := range words {
			for _, p := range rule.prefixes {
				if strings.HasPrefix(w, p) {
					return rule.intent
				}
			}
			for _, exact := range rule.words {
				if w == exact {
					return rule.intent
				}
			}
		}
	}
	return intentGeneric
}

// OfflineAnswer builds a deterministic answer from the price markers found in context.
func OfflineAnswer(question, context string, sources []string) string {
	markers := narrative.Parse(context)
	if len(markers) == 0 {
		return fmt.Sprintf("Offline analysis: no readable price data among the retrieved snapshots (%s).", listOrNone(sources))
	}

	prices := make([]float64, len(markers))
	ids := make([]string, 0, len(markers))
	seen := make(map[string]struct{})
	top := markers[0]
	for i, m := range markers {
		prices[i] = m.Price
		if m.Price > top.Price {
			top = m
		}
		if _, ok := seen[m.InstrumentID]; !ok && m.InstrumentID != "" {
			seen[m.InstrumentID] = struct{}{}
			ids = append(ids, m.InstrumentID)
		}
	}
	sum, _ := features.Summarize(prices)
	head := fmt.Sprintf("Offline analysis of %s: average price %.2f across %d snapshots", listOrNone(ids), sum.Mean, len(markers))

	switch classify(question) {
	case intentGain:
		up := movers(markers, func(pct float64) bool { return pct > 0 })
		if len(up) == 0 {
			return head + ". None of the retrieved instruments is trading up."
		}
		return fmt.Sprintf("%s. Trading up: %s.", head, strings.Join(up, ", "))
	case intentLoss:
		down := movers(markers, func(pct float64) bool { return pct < 0 })
		if len(down) == 0 {
			return head + ". None of the retrieved instruments is trading down."
		}
		return fmt.Sprintf("%s. Trading down: %s.", head, strings.Join(down, ", "))
	case intentBest:
		return fmt.Sprintf("%s. Highest price: %s at %.2f.", head, orUnknown(top.InstrumentID), sum.Max)
	default:
		return fmt.Sprintf("%s. Range %.2f to %.2f, highest %s.", head, sum.Min, sum.Max, orUnknown(top.InstrumentID))
	}
}

// movers lists "ID (+x.xx%)" for the first marker of each instrument whose change matches keep.
func movers(markers []narrative.Marker, keep func(float64) bool) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range markers {
		if m.ChangePercent == nil || m.InstrumentID == "" {
			continue
		}
		if _, ok := seen[m.InstrumentID]; ok {
			continue
		}
		seen[m.InstrumentID] = struct{}{}
		if keep(*m.ChangePercent) {
			out = append(out, fmt.Sprintf("%s (%+.2f%%)", m.InstrumentID, *m.ChangePercent))
		}
	}
	return out
}

func listOrNone(ids []string) string {
	if len(ids) == 0 {
		return "no instruments"
	}
	return strings.Join(ids, ", ")
}

func orUnknown(id string) string {
	if id == "" {
		return "unknown"
	}
	return id
}
