package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/ema-chat/core/conversations"
)

const (
	headerHeight = 1
	footerHeight = 2
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	thinkingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func roleStyle(role conversations.Role) (lipgloss.Style, string) {
	switch role {
	case conversations.RoleUser:
		return userStyle, "you"
	case conversations.RoleSystem:
		return systemStyle, "notice"
	default:
		return assistantStyle, "assistant"
	}
}
