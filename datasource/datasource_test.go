package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const menu = `<?xml version="1.0" encoding="UTF-8"?>
<breakfast_menu>
<food>
<name>Belgian Waffles</name>
<price>$5.95</price>
<description>
Two of our famous Belgian Waffles with plenty of real maple syrup
</description>
<calories>650</calories>
</food>
<food>
<name>Strawberry Belgian Waffles</name>
<price>$7.95</price>
<description>Light Belgian waffles covered with strawberries and whipped cream</description>
<calories>900</calories>
</food>
</breakfast_menu>`

func TestSummarize(t *testing.T) {
	s, err := Summarize(strings.NewReader(menu))
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if s.Root != "breakfast_menu" || s.Record != "food" || s.Count != 2 {
		t.Errorf("unexpected structure %+v", s)
	}
	if strings.Join(s.Fields, ",") != "name,price,description,calories" {
		t.Errorf("Fields = %v", s.Fields)
	}
	if s.Example["description"] != "Two of our famous Belgian Waffles with plenty of real maple syrup" {
		t.Errorf("description = %q", s.Example["description"])
	}

	text := s.String()
	if !strings.Contains(text, "<breakfast_menu> holds 2 <food> records") || !strings.Contains(text, "- price: $5.95") {
		t.Errorf("String() = %q", text)
	}
}

func TestSummarizeNoRecords(t *testing.T) {
	s, err := Summarize(strings.NewReader("<catalog></catalog>"))
	if err != nil {
		t.Fatal(err)
	}
	if s.Record != "" || !strings.Contains(s.String(), "no child records") {
		t.Errorf("unexpected summary %q", s.String())
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple.xml" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(menu))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	s, err := f.Fetch(context.Background(), srv.URL+"/simple.xml")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if s.URL != srv.URL+"/simple.xml" || s.Count != 2 {
		t.Errorf("unexpected summary %+v", s)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.xml"); err == nil {
		t.Error("a 404 should fail")
	}
}
