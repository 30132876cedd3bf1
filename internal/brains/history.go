package brains

import (
	"strings"

	"companion-server/internal/models"
)

// formatHistory форматирует последние limit сообщений в текстовый блок
// с явными метками ролей. personaName подставляется вместо "assistant",
// чтобы модель не путала, кто есть кто в диалоге.
func formatHistory(history []models.Message, limit int, personaName string) string {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	var b strings.Builder
	for _, msg := range history {
		label := "User"
		switch msg.Role {
		case models.RoleAssistant:
			label = personaName
			if label == "" {
				label = "Assistant"
			}
		case models.RoleSystem:
			continue // системные сообщения в контекст диалога не включаем
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(msg.Text))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
