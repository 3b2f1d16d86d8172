package feeds

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// KST is the publication timezone of the source site.
var KST = time.FixedZone("KST", 9*60*60)

// datePattern matches YYYY-MM-DD and YYYY.MM.DD, optionally followed by HH:MM.
var datePattern = regexp.MustCompile(`(\d{4})[.\-](\d{1,2})[.\-](\d{1,2})\.?(?:\s+(\d{1,2}):(\d{2}))?`)

// ParseDateText finds the first date in free text. Dots are treated as
// dashes so both notations parse to the same value.
func ParseDateText(text string, loc *time.Location) (time.Time, bool) {
	for _, m := range datePattern.FindAllStringSubmatch(text, -1) {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		hour, minute := 0, 0
		if m[4] != "" {
			hour, _ = strconv.Atoi(m[4])
			minute, _ = strconv.Atoi(m[5])
		}
		if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
			continue
		}
		t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
		// time.Date normalizes Feb 30 into March; reject those.
		if t.Day() != day {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

// parseDateAttr parses machine-readable date attributes, falling back to
// the text pattern for the "2024.03.01" style some templates emit.
func parseDateAttr(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := dateparse.ParseIn(value, loc); err == nil {
		return t, true
	}
	return ParseDateText(value, loc)
}

// findDate looks for a publication date inside sel: a <time datetime>
// attribute first, then the article:published_time meta tag, then any
// date-shaped text.
func findDate(sel *goquery.Selection, loc *time.Location) *time.Time {
	var found *time.Time
	sel.Find("time[datetime]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t, ok := parseDateAttr(s.AttrOr("datetime", ""), loc); ok {
			found = &t
			return false
		}
		return true
	})
	if found != nil {
		return found
	}

	if meta, ok := sel.Find(`meta[property="article:published_time"]`).First().Attr("content"); ok {
		if t, ok := parseDateAttr(meta, loc); ok {
			return &t
		}
	}

	if t, ok := ParseDateText(sel.Text(), loc); ok {
		return &t
	}
	return nil
}
