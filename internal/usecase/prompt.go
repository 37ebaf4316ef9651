package usecase

import (
	"strings"

	"genai-chatbot/internal/domain"
)

func buildPromptMessages(question string, history []domain.ChatMessage) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: systemPrompt()})
	messages = append(messages, history...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: question})
	return messages
}

func systemPrompt() string {
	return strings.Join([]string{
		"You are an expert book recommendation assistant.",
		"When a user asks about a subject or topic they want to study, you help them find the best books available.",
		"For each recommended book, provide:",
		"1. Book title and author.",
		"2. Approximate pricing (new, used, and eBook formats where available).",
		"3. An analyzed review summarizing strengths, weaknesses, and who it is best suited for.",
		"4. Where to buy it (e.g., Amazon, Google Books, Open Library).",
		"Always rank books from most recommended to least, and tailor suggestions to the user's level (beginner, intermediate, advanced) if they mention it.",
	}, " ")
}
