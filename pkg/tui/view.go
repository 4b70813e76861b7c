// Copyright 2024-2026 Aiku AI

package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var wrapStyle = lipgloss.NewStyle()

func (m *Model) View() string {
	if !m.ready {
		return "starting…"
	}
	sep := separatorStyle.Render(strings.Repeat("─", max(m.width, 1)))
	return lipgloss.JoinVertical(lipgloss.Left, m.tabBar(), m.view.View(), sep, m.input.View())
}

// tabBar renders one label per tab. Loading tabs end with "…", tabs with
// unread messages show the count and unseen mentions are marked with "!".
func (m *Model) tabBar() string {
	current := m.tabs.Index()
	labels := make([]string, 0, m.tabs.Len())
	for i := range m.tabs.Len() {
		t, _ := m.tabs.Get(i)
		labels = append(labels, renderTab(t, i == current))
	}
	bar := lipgloss.JoinHorizontal(lipgloss.Top, labels...)
	if m.width > 0 {
		bar = lipgloss.NewStyle().MaxWidth(m.width).Render(bar)
	}
	return bar
}

func renderTab(t *tab, active bool) string {
	text := tabText(t)
	switch {
	case active:
		return activeTabStyle.Render(text)
	case t.mention:
		return mentionTabStyle.Render(text)
	case t.unread > 0:
		return unreadTabStyle.Render(text)
	case t.loading:
		return loadingTabStyle.Render(text)
	}
	return tabStyle.Render(text)
}

func tabText(t *tab) string {
	text := t.label()
	if t.mention {
		text = "!" + text
	}
	if t.loading {
		text += "…"
	}
	if t.unread > 0 {
		text += " (" + strconv.Itoa(t.unread) + ")"
	}
	return text
}
