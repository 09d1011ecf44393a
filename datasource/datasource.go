// Package datasource previews the document the planner is asked to work on,
// so the planner prompt can describe its structure without the model having
// to download it first.
package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const maxBody = 4 << 20

// Summary describes a record-oriented XML or HTML document.
type Summary struct {
	URL     string
	Root    string
	Record  string
	Count   int
	Fields  []string
	Example map[string]string
}

// Fetcher downloads and summarises data sources.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher. A nil client uses a 15 second timeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client}
}

// Fetch downloads url and summarises it.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Summary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("datasource: build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("datasource: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("datasource: fetch %s: status %d", url, resp.StatusCode)
	}

	s, err := Summarize(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	s.URL = url
	return s, nil
}

// Summarize reads a document and finds its root element, the repeated record
// element under it, and the fields of the first record.
func Summarize(r io.Reader) (*Summary, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("datasource: parse: %w", err)
	}

	root := doc.Find("body").Children().First()
	if root.Length() == 0 {
		return nil, fmt.Errorf("datasource: document has no elements")
	}
	s := &Summary{Root: goquery.NodeName(root), Example: map[string]string{}}

	counts := map[string]int{}
	var order []string
	root.Children().Each(func(_ int, c *goquery.Selection) {
		name := goquery.NodeName(c)
		if counts[name] == 0 {
			order = append(order, name)
		}
		counts[name]++
	})
	for _, name := range order {
		if counts[name] > s.Count {
			s.Record, s.Count = name, counts[name]
		}
	}
	if s.Record == "" {
		return s, nil
	}

	first := root.ChildrenFiltered(s.Record).First()
	first.Children().Each(func(_ int, field *goquery.Selection) {
		name := goquery.NodeName(field)
		if _, ok := s.Example[name]; ok {
			return
		}
		s.Fields = append(s.Fields, name)
		s.Example[name] = clean(field.Text())
	})
	return s, nil
}

// String renders the summary as prompt text.
func (s *Summary) String() string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	if s.Record == "" {
		fmt.Fprintf(&b, "The document root element is <%s> and it has no child records.", s.Root)
		return b.String()
	}
	fmt.Fprintf(&b, "The root element <%s> holds %d <%s> records", s.Root, s.Count, s.Record)
	if len(s.Fields) > 0 {
		fmt.Fprintf(&b, " with fields: %s.", strings.Join(s.Fields, ", "))
		b.WriteString("\nFirst record:")
		for _, f := range s.Fields {
			fmt.Fprintf(&b, "\n- %s: %s", f, s.Example[f])
		}
	} else {
		b.WriteString(".")
	}
	return b.String()
}

var spaces = regexp.MustCompile(`\s+`)

func clean(text string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(text, " "))
}
