// Package narrative renders snapshots into the fixed-format text used as the
// retrieval document and parses the price markers back out of retrieved context.
package narrative

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"FinPulse/internal/domain/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	labelStock   = "Stock:"
	labelPrice   = "Current Price:"
	labelChange  = "Change:"
	unknown      = "N/A"
	timeLayout   = "2006-01-02 15:04:05 MST"
	blockDivider = "\n\n"
)

var printer = message.NewPrinter(language.English)

// Render produces the narrative block of s. Unknown optional fields render as N/A.
func Render(s models.Snapshot, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	name := s.InstrumentID
	if s.DisplayName != "" && s.DisplayName != s.InstrumentID {
		name = fmt.Sprintf("%s (%s)", s.InstrumentID, s.DisplayName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", labelStock, name)
	fmt.Fprintf(&b, "Sector: %s\n", optString(s.Sector))
	fmt.Fprintf(&b, "%s %.2f\n", labelPrice, s.Price)
	fmt.Fprintf(&b, "%s %+.2f (%+.2f%%)\n", labelChange, s.Change, s.ChangePercent)
	fmt.Fprintf(&b, "Day Range: %.2f - %.2f\n", s.Low, s.High)
	fmt.Fprintf(&b, "Open: %.2f\n", s.Open)
	fmt.Fprintf(&b, "Volume: %s\n", printer.Sprintf("%d", s.Volume))
	fmt.Fprintf(&b, "Market Cap: %s\n", optAmount(s.MarketCap))
	fmt.Fprintf(&b, "PE Ratio: %s\n", optFloat(s.PERatio))
	fmt.Fprintf(&b, "Source: %s\n", s.Provenance)
	fmt.Fprintf(&b, "Last Updated: %s", s.ObservedAt.In(loc).Format(timeLayout))
	return b.String()
}

// Join concatenates narratives into one context string, blank-line separated.
func Join(blocks []string) string {
	return strings.Join(blocks, blockDivider)
}

func optString(s *string) string {
	if s == nil || *s == "" {
		return unknown
	}
	return *s
}

func optFloat(f *float64) string {
	if f == nil {
		return unknown
	}
	return strconv.FormatFloat(*f, 'f', 2, 64)
}

func optAmount(f *float64) string {
	if f == nil {
		return unknown
	}
	return printer.Sprintf("%.2f", *f)
}

// Marker is what the offline answerer can recover from one narrative block.
type Marker struct {
	InstrumentID  string
	Price         float64
	ChangePercent *float64
}

var (
	stockRe  = regexp.MustCompile(`(?m)^Stock:\s*(\S+)`)
	priceRe  = regexp.MustCompile(`(?m)^Current Price:\s*[^\d\-+]*([-+]?[\d,]*\.?\d+)`)
	changeRe = regexp.MustCompile(`(?m)^Change:.*\(([-+]?\d+(?:\.\d+)?)%\)`)
)

// Parse extracts one Marker per block that carries a parseable price, in input order.
func Parse(context string) []Marker {
	var out []Marker
	for _, block := range strings.Split(context, blockDivider) {
		pm := priceRe.FindStringSubmatch(block)
		if pm == nil {
			continue
		}
		price, err := strconv.ParseFloat(strings.ReplaceAll(pm[1], ",", ""), 64)
		if err != nil {
			continue
		}

		m := Marker{Price: price}
		if sm := stockRe.FindStringSubmatch(block); sm != nil {
			m.InstrumentID = sm[1]
		}
		if cm := changeRe.FindStringSubmatch(block); cm != nil {
			if pct, err := strconv.ParseFloat(cm[1], 64); err == nil {
				m.ChangePercent = &pct
			}
		}
		out = append(out, m)
	}
	return out
}
