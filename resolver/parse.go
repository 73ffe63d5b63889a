package resolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var orderIDPattern = regexp.MustCompile(`orderId=([^&]+)`)

// parseOrderID extracts the backend order id from a stage 1 JSON body.
func parseOrderID(body []byte) (string, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	viewURL, _ := payload["vieworderurl"].(string)
	if viewURL == "" {
		return "", errMissingViewURL
	}
	m := orderIDPattern.FindStringSubmatch(viewURL)
	if m == nil {
		return "", errNoOrderID
	}
	return m[1], nil
}

// parseDocumentNumber looks for the document number table in a stage 2 page.
// It finds the header cell carrying one of labels, then the first later row
// with data cells, and returns the first cell of six or more digits in it.
// The number only counts when it starts with sentinel.
func parseDocumentNumber(body []byte, labels []string, sentinel byte) (string, bool, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("parse html: %w", err)
	}

	header := find(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Th && hasLabel(textOf(n), labels)
	})
	if header == nil {
		return "", false, nil
	}

	scope := enclosing(header, atom.Table)
	if scope == nil {
		scope = doc
	}

	row := firstDataRowAfter(scope, header)
	if row == nil {
		return "", false, nil
	}
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Td {
			continue
		}
		cell := strings.TrimSpace(textOf(c))
		if len(cell) >= 6 && isDigits(cell) {
			if cell[0] == sentinel {
				return cell, true, nil
			}
			return "", false, nil
		}
	}
	return "", false, nil
}

func firstDataRowAfter(scope, marker *html.Node) *html.Node {
	passed := false
	var row *html.Node
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n == marker {
			passed = true
			return false
		}
		if passed && n.Type == html.ElementNode && n.DataAtom == atom.Tr && hasChild(n, atom.Td) {
			row = n
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(scope)
	return row
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func enclosing(n *html.Node, a atom.Atom) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == a {
			return p
		}
	}
	return nil
}

func hasChild(n *html.Node, a atom.Atom) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func hasLabel(text string, labels []string) bool {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	for _, label := range labels {
		if strings.Contains(normalized, strings.ToLower(label)) {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
