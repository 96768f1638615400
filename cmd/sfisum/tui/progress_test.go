package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/sfisum/pkg/sfisum/hasher"
	"github.com/jamesainslie/sfisum/pkg/sfisum/walker"
)

func TestModelShowsWalkProgress(t *testing.T) {
	m := NewModel("generate")

	updated, _ := m.Update(WalkMsg(walker.Progress{Files: 1234, Bytes: 2048}))
	view := updated.View()

	if !strings.Contains(view, "generate") {
		t.Errorf("View() missing title: %q", view)
	}
	if !strings.Contains(view, "1,234 files") {
		t.Errorf("View() missing file count: %q", view)
	}
	if !strings.Contains(view, "2.0 KiB") {
		t.Errorf("View() missing byte count: %q", view)
	}
}

func TestModelShowsHashProgress(t *testing.T) {
	var m tea.Model = NewModel("fast refresh")

	m, _ = m.Update(WalkMsg(walker.Progress{Files: 10}))
	m, _ = m.Update(HashMsg(hasher.Progress{Pool: hasher.PoolSmall, Remaining: 2, Total: 8}))
	m, _ = m.Update(HashMsg(hasher.Progress{Pool: hasher.PoolLarge, Remaining: 1, Total: 2}))
	view := m.View()

	if !strings.Contains(view, "hashing") {
		t.Errorf("View() missing hashing label: %q", view)
	}
	if !strings.Contains(view, "7/10") {
		t.Errorf("View() missing overall count: %q", view)
	}
	if !strings.Contains(view, "small 6/8") || !strings.Contains(view, "large 1/2") {
		t.Errorf("View() missing per-pool counts: %q", view)
	}
}

func TestModelDoneClearsView(t *testing.T) {
	m := NewModel("validate")

	updated, cmd := m.Update(DoneMsg{})
	if cmd == nil {
		t.Error("Update(DoneMsg) returned nil command, want tea.Quit")
	}
	if view := updated.View(); view != "" {
		t.Errorf("View() after done = %q, want empty", view)
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		done, total int64
		filled      int
	}{
		{0, 0, 0},
		{0, 10, 0},
		{5, 10, barWidth / 2},
		{10, 10, barWidth},
		{12, 10, barWidth},
	}
	for _, tt := range tests {
		bar := renderBar(tt.done, tt.total)
		if got := strings.Count(bar, "█"); got != tt.filled {
			t.Errorf("renderBar(%d, %d) filled = %d, want %d", tt.done, tt.total, got, tt.filled)
		}
	}
}
