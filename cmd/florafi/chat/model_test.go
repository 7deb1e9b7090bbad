package chat

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"florafi/internal/sensor"
	"florafi/internal/session"
)

func testModel(t *testing.T) Model {
	t.Helper()
	mgr := session.NewManager(session.ManagerConfig{
		PlantName: "Fern",
		Source:    sensor.NewSimSource(time.Millisecond),
	})
	m := newModel(mgr, "Fern")
	sized, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return sized.(Model)
}

func TestRenderHistory(t *testing.T) {
	m := testModel(t)
	m.history = []Message{
		{Role: "user", Content: "hello there"},
		{Role: "plant", Content: "rustle rustle"},
	}
	out := m.renderHistory()
	if !strings.Contains(out, "hello there") {
		t.Errorf("history missing user text:\n%s", out)
	}
	if !strings.Contains(out, "rustle rustle") {
		t.Errorf("history missing plant text:\n%s", out)
	}
	if !strings.Contains(out, "Fern") {
		t.Errorf("history missing plant name:\n%s", out)
	}
}

func TestReplyMsgAppendsHistory(t *testing.T) {
	m := testModel(t)
	m.thinking = true

	updated, _ := m.Update(replyMsg{text: "a leafy answer"})
	got := updated.(Model)
	if got.thinking {
		t.Error("thinking should clear on reply")
	}
	if len(got.history) != 1 || got.history[0].Role != "plant" {
		t.Errorf("history = %+v", got.history)
	}
}

func TestReplyMsgError(t *testing.T) {
	m := testModel(t)
	m.thinking = true

	updated, _ := m.Update(replyMsg{err: errFake})
	got := updated.(Model)
	if got.err == nil {
		t.Error("error should be surfaced")
	}
	if len(got.history) != 0 {
		t.Error("failed reply must not enter history")
	}
	if !strings.Contains(got.View(), "error:") {
		t.Error("view missing error status")
	}
}

var errFake = &fakeErr{}

type fakeErr struct{}

func (*fakeErr) Error() string { return "companion unreachable" }

func TestEnterIgnoredWhileThinking(t *testing.T) {
	m := testModel(t)
	m.thinking = true
	m.textarea.SetValue("impatient question")

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	got := updated.(Model)
	if len(got.history) != 0 {
		t.Error("enter while thinking should not submit")
	}
}

func TestViewShowsDeviation(t *testing.T) {
	m := testModel(t)
	m.deviation = 12.34
	if !strings.Contains(m.View(), "12.34") {
		t.Error("view missing deviation readout")
	}
}
