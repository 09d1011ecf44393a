package ui

import (
	"context"
	"errors"
	"testing"
)

func TestTranscriptRecordsEntries(t *testing.T) {
	tr := NewTranscript()
	ctx := context.Background()

	_ = tr.Publish(ctx, NewEntry("Query_Agent", "hi"))
	_ = tr.Publish(ctx, Notice("Starting agents on task: x..."))
	_ = tr.Publish(ctx, Error(errors.New("boom")))

	entries := tr.Entries()
	if len(entries) != 3 || tr.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Kind != KindMessage || entries[0].Author != "Query_Agent" {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Kind != KindNotice || entries[1].Author != "" {
		t.Errorf("unexpected notice %+v", entries[1])
	}
	if entries[2].Kind != KindError || entries[2].Content != "boom" {
		t.Errorf("unexpected error entry %+v", entries[2])
	}
	if since := tr.Since(2); len(since) != 1 {
		t.Errorf("Since(2) = %d entries", len(since))
	}
	if tr.Since(10) != nil {
		t.Error("Since past end should be nil")
	}
}

func TestTranscriptScriptedAsks(t *testing.T) {
	tr := NewTranscript()
	ctx := context.Background()

	resp, err := tr.AskAction(ctx, ActionRequest{Content: "pick"})
	if err != nil || resp != nil {
		t.Fatalf("unscripted action ask should yield no result, got %v, %v", resp, err)
	}

	tr.ScriptActions("feedback")
	tr.SetDefaultAction("continue")
	if resp, _ := tr.AskAction(ctx, ActionRequest{}); resp.Value != "feedback" {
		t.Errorf("scripted action = %q", resp.Value)
	}
	if resp, _ := tr.AskAction(ctx, ActionRequest{}); resp.Value != "continue" {
		t.Errorf("default action = %q", resp.Value)
	}

	tr.ScriptTexts("more detail")
	if resp, _ := tr.AskText(ctx, TextRequest{Content: "q"}); resp.Value != "more detail" {
		t.Errorf("scripted text = %q", resp.Value)
	}
	if resp, _ := tr.AskText(ctx, TextRequest{}); resp != nil {
		t.Error("exhausted text script should yield no result")
	}
	if len(tr.Asks()) != 5 {
		t.Errorf("Asks() = %v", tr.Asks())
	}
}
