package ranking

import (
	"strings"
	"time"

	"supportrag/internal/domain"
)

const day = 24 * time.Hour

// dateLayouts are tried in order; naive timestamps are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// keywordScore is the fraction of query n-grams found verbatim in text.
func keywordScore(grams []string, text string) float64 {
	if len(grams) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matches := 0
	for _, g := range grams {
		if strings.Contains(lower, g) {
			matches++
		}
	}
	return float64(matches) / float64(len(grams))
}

// semanticScore turns a rank position into a score: rank 0 gets 1.0 and each
// following rank loses 1/n.
func semanticScore(rank, n int) float64 {
	if n == 0 {
		return 0
	}
	return 1 - float64(rank)/float64(n)
}

func priorityScore(priorities map[domain.EffectiveType]float64, maxPriority float64, m domain.Metadata) float64 {
	if maxPriority <= 0 {
		return 0
	}
	return priorities[domain.EffectiveTypeOf(m)] / maxPriority
}

// recencyScore decays linearly, in whole days, between the recent and max age
// thresholds. Missing or unparsable dates score 0.
func recencyScore(cfg RecencyConfig, now time.Time, m domain.Metadata) float64 {
	date, ok := parseDate(domain.RelevantDate(m))
	if !ok {
		return 0
	}
	age := now.Sub(date)
	recent := time.Duration(cfg.RecentDays) * day
	maxAge := time.Duration(cfg.MaxAgeDays) * day
	switch {
	case age <= recent:
		return 1
	case age >= maxAge:
		return 0
	}
	elapsed := int((age - recent) / day)
	return 1 - float64(elapsed)/float64(cfg.MaxAgeDays-cfg.RecentDays)
}

// categoryBoost returns 1 + step*|overlap| for support tickets whose categories
// intersect the query's, and 1 otherwise.
func categoryBoost(step float64, queryCategories map[string]struct{}, m domain.Metadata) float64 {
	if len(queryCategories) == 0 || m.Source != domain.KindSupportTicket {
		return 1
	}
	overlap := make(map[string]struct{})
	for _, c := range domain.TicketCategories(m) {
		if _, ok := queryCategories[c]; ok {
			overlap[c] = struct{}{}
		}
	}
	return 1 + step*float64(len(overlap))
}
