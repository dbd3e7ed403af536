package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// structuredDataPrice looks for an offer price in embedded JSON-LD product
// markup. Returns the raw price value or "" when none is present.
func structuredDataPrice(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var price string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true
		}
		if p := offerPrice(payload); p != "" {
			price = p
			return false
		}
		return true
	})
	return price
}

// offerPrice walks a decoded JSON-LD document for a Product node's offer
// price. Handles @graph wrappers, offer arrays, and priceSpecification.
func offerPrice(node any) string {
	switch v := node.(type) {
	case map[string]any:
		if offers, ok := v["offers"]; ok {
			if p := priceOf(offers); p != "" {
				return p
			}
		}
		if graph, ok := v["@graph"]; ok {
			if p := offerPrice(graph); p != "" {
				return p
			}
		}
	case []any:
		for _, item := range v {
			if p := offerPrice(item); p != "" {
				return p
			}
		}
	}
	return ""
}

func priceOf(offers any) string {
	switch v := offers.(type) {
	case map[string]any:
		for _, key := range []string{"price", "lowPrice"} {
			if p := rawValue(v[key]); p != "" {
				return p
			}
		}
		if spec, ok := v["priceSpecification"]; ok {
			return priceOf(spec)
		}
	case []any:
		for _, item := range v {
			if p := priceOf(item); p != "" {
				return p
			}
		}
	}
	return ""
}

func rawValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return fmt.Sprintf("%g", t)
	}
	return ""
}

// Common price field names in retailer page state blobs.
var scriptPricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`"price"\s*:\s*"?(\d[\d.,]*)`),
	regexp.MustCompile(`"salePrice"\s*:\s*"?(\d[\d.,]*)`),
	regexp.MustCompile(`"currentPrice"\s*:\s*"?(\d[\d.,]*)`),
	regexp.MustCompile(`"offerPrice"\s*:\s*"?(\d[\d.,]*)`),
	regexp.MustCompile(`"priceAmount"\s*:\s*"?(\d[\d.,]*)`),
	regexp.MustCompile(`price_amount["']?\s*[:=]\s*["']?(\d[\d.,]*)`),
}

// minedScriptPrice scans inline script bodies for key/value price patterns.
// The last-resort strategy after selectors and structured data both miss.
func minedScriptPrice(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var price string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if typ, _ := s.Attr("type"); typ == "application/ld+json" {
			return true
		}
		body := s.Text()
		for _, re := range scriptPricePatterns {
			if m := re.FindStringSubmatch(body); m != nil {
				price = m[1]
				return false
			}
		}
		return true
	})
	return price
}
