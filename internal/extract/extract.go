// Package extract pulls product title and price off a loaded page. Selector
// lookup comes first, then structured-data markup, then text-pattern mining
// over inline scripts. Incomplete data is always a failure: partial results
// usually mean blocking or selector drift, never something worth returning.
package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Page is the read-only slice of a browser page the pipeline needs. The
// orchestrator adapts an automation-engine page to it; tests fake it.
type Page interface {
	// FirstText returns the trimmed text content of the first element
	// matching the selector, or "" when nothing matches.
	FirstText(selector string) (string, error)
	// HTML returns the full serialized page content.
	HTML() (string, error)
	URL() string
}

// Selectors carries the retailer-selected fallback chains for one run.
type Selectors struct {
	Title []string
	Price []string
}

// Result is a complete extraction: title and price are always populated.
type Result struct {
	Title string
	Price float64
	URL   string
}

// IncompleteError is the pipeline-level validation failure. Its message
// carries a fixed prefix so classification is deterministic.
type IncompleteError struct {
	MissingTitle bool
	MissingPrice bool
}

func (e *IncompleteError) Error() string {
	var missing []string
	if e.MissingTitle {
		missing = append(missing, "title")
	}
	if e.MissingPrice {
		missing = append(missing, "price")
	}
	return fmt.Sprintf("incomplete product data: missing %s", strings.Join(missing, " and "))
}

type Pipeline struct {
	logger *slog.Logger
}

func NewPipeline(logger *slog.Logger) *Pipeline {
	return &Pipeline{logger: logger.With("component", "extract")}
}

// Extract runs the full pipeline against the page. Read-only: the page is
// never mutated. Returns *IncompleteError when title or price is missing.
func (p *Pipeline) Extract(page Page, sel Selectors) (*Result, error) {
	title := p.extractTitle(page, sel.Title)
	price := p.extractPrice(page, sel.Price)

	if title == "" || price == nil {
		err := &IncompleteError{MissingTitle: title == "", MissingPrice: price == nil}
		p.logger.Debug("extraction incomplete", "url", page.URL(), "error", err)
		return nil, err
	}

	return &Result{Title: title, Price: *price, URL: page.URL()}, nil
}

func (p *Pipeline) extractTitle(page Page, selectors []string) string {
	for _, sel := range selectors {
		text, err := page.FirstText(sel)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return CleanTitle(text)
		}
	}
	return ""
}

func (p *Pipeline) extractPrice(page Page, selectors []string) *float64 {
	for _, sel := range selectors {
		text, err := page.FirstText(sel)
		if err != nil {
			continue
		}
		if price := ParsePrice(text); price != nil {
			return price
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil
	}

	if raw := structuredDataPrice(html); raw != "" {
		if price := ParsePrice(raw); price != nil {
			p.logger.Debug("price from structured data", "url", page.URL())
			return price
		}
	}

	if raw := minedScriptPrice(html); raw != "" {
		if price := ParsePrice(raw); price != nil {
			p.logger.Debug("price mined from inline script", "url", page.URL())
			return price
		}
	}

	return nil
}

var unavailableSuffixes = []string{
	"- currently unavailable",
	"(currently unavailable)",
	"- item unavailable",
	"- out of stock",
}

// CleanTitle trims the title and strips known unavailability boilerplate.
func CleanTitle(title string) string {
	title = strings.TrimSpace(title)
	lower := strings.ToLower(title)
	for _, suffix := range unavailableSuffixes {
		if strings.HasSuffix(lower, suffix) {
			title = strings.TrimSpace(title[:len(title)-len(suffix)])
			break
		}
	}
	return title
}

var numericToken = regexp.MustCompile(`\d{1,3}(?:[.,]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?`)

// ParsePrice extracts the first numeric token from raw text and parses it as
// a decimal, handling thousands separators in both comma and dot styles.
// Returns nil when no numeric token is present.
func ParsePrice(raw string) *float64 {
	token := numericToken.FindString(raw)
	if token == "" {
		return nil
	}

	normalized := normalizeDecimal(token)
	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return nil
	}
	return &value
}

// normalizeDecimal rewrites a localized numeric token into strconv form. When
// both separators occur the last one is the decimal mark; a lone separator is
// decimal only when followed by one or two digits.
func normalizeDecimal(token string) string {
	lastComma := strings.LastIndex(token, ",")
	lastDot := strings.LastIndex(token, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			token = strings.ReplaceAll(token, ".", "")
			token = strings.Replace(token, ",", ".", 1)
		} else {
			token = strings.ReplaceAll(token, ",", "")
		}
	case lastComma >= 0:
		if len(token)-lastComma-1 <= 2 && strings.Count(token, ",") == 1 {
			token = strings.Replace(token, ",", ".", 1)
		} else {
			token = strings.ReplaceAll(token, ",", "")
		}
	case lastDot >= 0:
		if len(token)-lastDot-1 == 3 || strings.Count(token, ".") > 1 {
			token = strings.ReplaceAll(token, ".", "")
		}
	}

	return token
}
