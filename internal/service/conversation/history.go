package conversation

import (
	"fmt"
	"strings"
)

// Message роль и текст реплики без служебных полей; так история уходит в промпт.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

var (
	historyEscaper   = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)
	historyUnescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\r`, "\r")
)

// FormatHistory сериализует историю построчно в виде "role: text".
// Переводы строк внутри текста экранируются, поэтому одна реплика всегда занимает одну строку.
func FormatHistory(history []Message) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, string(m.Role)+": "+historyEscaper.Replace(m.Text))
	}
	return strings.Join(lines, "\n")
}

// ParseHistory восстанавливает историю, записанную FormatHistory.
func ParseHistory(s string) ([]Message, error) {
	if s == "" {
		return nil, nil
	}
	lines := strings.Split(s, "\n")
	out := make([]Message, 0, len(lines))
	for i, line := range lines {
		role, text, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, fmt.Errorf("history line %d: missing role separator", i+1)
		}
		r := Role(role)
		if r != RoleUser && r != RoleBot {
			return nil, fmt.Errorf("history line %d: unknown role %q", i+1, role)
		}
		out = append(out, Message{Role: r, Text: historyUnescaper.Replace(text)})
	}
	return out, nil
}
