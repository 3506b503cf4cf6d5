package live

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/motti-landau/kvstore"
)

type fakeSearcher struct {
	queries []string
	result  []kvstore.Match
}

func (f *fakeSearcher) Search(q string, _ kvstore.Target, _ int) []kvstore.Match {
	f.queries = append(f.queries, q)
	return f.result
}

func typeRunes(m Model, s string) Model {
	for _, r := range s {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func TestTypingRunsSearch(t *testing.T) {
	src := &fakeSearcher{result: []kvstore.Match{
		{Key: "foo", Record: kvstore.Record{Key: "foo", Value: "bar\nbaz", Tags: []string{"x"}}},
	}}
	m := typeRunes(New(src, kvstore.TargetBoth, 10), "fo")

	if got := strings.Join(src.queries, ","); got != "f,fo" {
		t.Fatalf("queries = %q, want f,fo", got)
	}
	if m.Query() != "fo" {
		t.Fatalf("query = %q", m.Query())
	}
	view := m.View()
	if !strings.Contains(view, "foo") || !strings.Contains(view, "bar …") {
		t.Fatalf("view missing match:\n%s", view)
	}
}

func TestEmptyQueryShowsHint(t *testing.T) {
	src := &fakeSearcher{}
	m := New(src, kvstore.TargetKeys, 5)
	if !strings.Contains(m.View(), "Type to search") {
		t.Fatalf("view = %q", m.View())
	}
	m = typeRunes(m, "zz")
	if !strings.Contains(m.View(), "No matches found.") {
		t.Fatalf("view = %q", m.View())
	}
}

func TestDeleteClearsQuery(t *testing.T) {
	src := &fakeSearcher{result: []kvstore.Match{{Key: "a"}}}
	m := typeRunes(New(src, kvstore.TargetBoth, 5), "abc")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDelete})
	m = next.(Model)
	if m.Query() != "" || m.Matches() != nil {
		t.Fatalf("query=%q matches=%v after delete", m.Query(), m.Matches())
	}
}

func TestQuitKeys(t *testing.T) {
	for _, k := range []tea.KeyType{tea.KeyEsc, tea.KeyEnter, tea.KeyCtrlC, tea.KeyCtrlD} {
		m := New(&fakeSearcher{}, kvstore.TargetBoth, 5)
		next, cmd := m.Update(tea.KeyMsg{Type: k})
		if cmd == nil {
			t.Fatalf("%v: expected quit command", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("%v: expected tea.QuitMsg", k)
		}
		if next.(Model).View() != "" {
			t.Fatalf("%v: view should be empty after quit", k)
		}
	}
}
