package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPlainDisplayer_SeparatesProgressAndResults(t *testing.T) {
	var progress, results bytes.Buffer
	d := NewPlainDisplayer(&progress, &results)

	d.Banner("airports")
	d.Working("Fetching airports")
	d.Table("Airports", []string{"ID", "NAME"}, [][]string{{"1", "Gryttjom"}, {"22", "Skive"}})
	d.Done("2 airports")

	if !strings.Contains(progress.String(), "Fetching airports...") {
		t.Errorf("progress = %q", progress.String())
	}
	if strings.Contains(progress.String(), "Gryttjom") {
		t.Errorf("table rows written to progress output")
	}

	lines := strings.Split(strings.TrimSpace(results.String()), "\n")
	want := []string{"Airports", "ID  NAME", "1   Gryttjom", "22  Skive"}
	if len(lines) != len(want) {
		t.Fatalf("results = %q, want %q", lines, want)
	}
	for i := range want {
		if strings.TrimRight(lines[i], " ") != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestPlainDisplayer_StatusAndTokenChanges(t *testing.T) {
	var buf bytes.Buffer
	d := NewPlainDisplayer(&buf, nil)

	d.Status(StatusInfo{Origin: "http://localhost:8080", Storage: "file", HasAccess: true, Preview: "abc"})
	d.TokenChanged("xyz")
	d.TokenChanged("")
	d.Fatal(errors.New("boom"))

	out := buf.String()
	for _, want := range []string{
		"Access Token:  abc...",
		"Refresh Token: (none)",
		"token set: xyz...",
		"token cleared",
		"Error: boom",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestModel_Transitions(t *testing.T) {
	var m Model = NewModel()

	step := func(msg any) {
		t.Helper()
		next, _ := m.Update(msg)
		m = next.(Model)
	}

	step(MsgBanner{Command: "watch"})
	step(MsgWatching{Source: "slowfall-auth"})
	if m.state != stateWatching {
		t.Fatalf("state = %v, want watching", m.state)
	}

	for range maxStatusLines + 5 {
		step(MsgTokenChanged{Preview: "tok"})
	}
	if len(m.statusLines) != maxStatusLines {
		t.Errorf("status lines = %d, want capped at %d", len(m.statusLines), maxStatusLines)
	}

	step(MsgTable{Title: "Jumps", Headers: []string{"ID"}, Rows: [][]string{{"1"}}})
	step(MsgDone{Summary: "stopped"})
	if m.state != stateSuccess {
		t.Errorf("state = %v, want success", m.state)
	}
	if !strings.Contains(m.viewSuccess(), "stopped") {
		t.Errorf("success view missing summary")
	}

	step(MsgFatal{Err: errors.New("kaput")})
	if m.state != stateError || !strings.Contains(m.viewError(), "kaput") {
		t.Errorf("error view not shown")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0s", "0s"},
		{"1.4s", "1s"},
		{"59s", "59s"},
		{"61s", "1m 1s"},
		{"10m30s", "10m 30s"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := time.ParseDuration(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got := formatDuration(d); got != tt.want {
				t.Errorf("formatDuration(%s) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
