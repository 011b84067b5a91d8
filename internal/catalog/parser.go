package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ParseIssue records a listing fragment that could not be turned into an
// Item. Issues never abort a parse; callers receive the items that did
// parse alongside the issues for logging.
type ParseIssue struct {
	Fragment string
	Reason   string
}

// ParseListingHTML extracts course items from a rendered listing page.
// Parsing is a pure function of the input bytes: identical content always
// yields the identical item sequence, in document order.
func ParseListingHTML(baseURL string, body []byte, now time.Time) ([]Item, []ParseIssue, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse listing html: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse base url: %w", err)
	}

	var (
		items  []Item
		issues []ParseIssue
		seen   = make(map[string]struct{})
	)

	var walker func(*html.Node)
	walker = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attrValue(n, "href"); isCourseLink(href) {
				ref, err := url.Parse(strings.TrimSpace(href))
				if err != nil {
					issues = append(issues, ParseIssue{Fragment: href, Reason: "unparseable href"})
				} else {
					absolute := base.ResolveReference(ref)
					if absolute.Scheme == "http" || absolute.Scheme == "https" {
						title := strings.TrimSpace(nodeText(n))
						if title == "" {
							issues = append(issues, ParseIssue{Fragment: absolute.String(), Reason: "course link without title"})
						} else {
							item := Item{
								Title:        title,
								URL:          absolute.String(),
								DiscoveredAt: now,
							}
							identity := item.Identity()
							if _, dup := seen[identity]; !dup {
								seen[identity] = struct{}{}
								items = append(items, item)
							}
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walker(c)
		}
	}
	walker(doc)

	return items, issues, nil
}

// apiListing mirrors the catalog API payload shape.
type apiListing struct {
	Results []struct {
		ID                 json.Number `json:"id"`
		Title              string      `json:"title"`
		URL                string      `json:"url"`
		IsPaid             *bool       `json:"is_paid"`
		AvgRating          float64     `json:"avg_rating_recent"`
		VisibleInstructors []struct {
			DisplayName string `json:"display_name"`
		} `json:"visible_instructors"`
	} `json:"results"`
}

// ParseListingJSON extracts course items from a catalog API response.
// Entries flagged as paid are skipped; entries missing both id and url are
// reported as issues.
func ParseListingJSON(baseURL string, body []byte, now time.Time) ([]Item, []ParseIssue, error) {
	var listing apiListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, nil, fmt.Errorf("parse listing json: %w", err)
	}

	var (
		items  []Item
		issues []ParseIssue
	)
	for _, entry := range listing.Results {
		if entry.IsPaid != nil && *entry.IsPaid {
			continue
		}
		id := entry.ID.String()
		courseURL := strings.TrimSpace(entry.URL)
		if id == "" && courseURL == "" {
			issues = append(issues, ParseIssue{Fragment: entry.Title, Reason: "result without id or url"})
			continue
		}
		if courseURL != "" && !strings.Contains(courseURL, "://") {
			courseURL = strings.TrimRight(baseOrigin(baseURL), "/") + "/" + strings.TrimLeft(courseURL, "/")
		}
		item := Item{
			ID:           id,
			Title:        strings.TrimSpace(entry.Title),
			URL:          courseURL,
			DiscoveredAt: now,
		}
		if len(entry.VisibleInstructors) > 0 {
			item.Instructor = strings.TrimSpace(entry.VisibleInstructors[0].DisplayName)
		}
		if entry.AvgRating > 0 {
			item.Rating = strconv.FormatFloat(entry.AvgRating, 'f', 1, 64)
		}
		if item.Title == "" {
			item.Title = "Untitled course"
		}
		items = append(items, item)
	}
	return items, issues, nil
}

func isCourseLink(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" {
		return false
	}
	return strings.Contains(href, "/course/")
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func baseOrigin(baseURL string) string {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(baseURL, "/")
	}
	return parsed.Scheme + "://" + parsed.Host
}
