// Copyright 2024-2026 Aiku AI

package tui

import (
	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/lipgloss"
)

var (
	activeTabStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	tabStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Padding(0, 1)
	loadingTabStyle = tabStyle.Foreground(lipgloss.Color("241"))
	unreadTabStyle  = tabStyle.Foreground(lipgloss.Color("15")).Bold(true)
	mentionTabStyle = tabStyle.Foreground(lipgloss.Color("9")).Bold(true)

	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	mentionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	infoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	separatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

var nickColors = []lipgloss.Color{"1", "2", "3", "4", "5", "6", "9", "10", "11", "12", "13", "14"}

// nickStyle gives every sender a stable color across runs.
func nickStyle(nick string) lipgloss.Style {
	c := nickColors[xxhash.Sum64String(nick)%uint64(len(nickColors))]
	return lipgloss.NewStyle().Foreground(c)
}
