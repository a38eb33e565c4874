package answer

import (
	"encoding/base64"
	"fmt"
	"strings"

	"whybot/internal/service/conversation"
)

// SystemInstruction персона и правила безопасности для текстовой модели.
const SystemInstruction = `You are 'The Why Bot', a friendly and patient robot explaining things to a 5-year-old child. ` +
	`All your answers must be simple, positive, engaging, and very short (1-2 sentences). ` +
	`Use easy words a preschooler can understand. ` +
	`Never talk about violence, scary, adult or dangerous topics; if the child asks about them, gently suggest a fun, safe topic instead. ` +
	`After your explanation, create a simple, descriptive prompt for an image generation model to create a colorful, simple, flat 2D cartoon illustration that visually explains your answer. ` +
	`Do not describe the style, just the subject. The image prompt must describe only what is seen and must never ask for any text, letters, words, numbers or signs in the picture. ` +
	`For example, 'A happy sun smiling in the blue sky.' or 'A red car driving on a road.'. ` +
	`Your entire response must be a single JSON object with two keys: "answer" and "imagePrompt".`

// ImagePrefix фиксированный стиль иллюстрации; к нему дописывается imagePrompt.
const ImagePrefix = "A simple, colorful, flat 2D cartoon illustration for a 5-year-old child, with no text or letters: "

// Подмена для запросов, которые бэкенд классифицировал как небезопасные.
const (
	RedirectAnswer     = "That's a big question! Let's ask a grown-up about that one. Do you want to know why the stars twinkle instead?"
	NeutralImagePrompt = "A cheerful smiling robot waving hello next to a rainbow and fluffy white clouds."
)

// Поля схемы ответа.
const (
	FieldAnswer      = "answer"
	FieldImagePrompt = "imagePrompt"
)

// Описания полей схемы, которые уходят в модель вместе со схемой.
const (
	AnswerFieldDescription      = "The simple, short answer for a 5-year-old."
	ImagePromptFieldDescription = "The simple, descriptive prompt for image generation. Visual content only, no text or lettering."
)

// BuildPrompt собирает промпт: история диалога и новый вопрос.
// История передаётся в том же порядке и с метками ролей, чтобы модель понимала "Why?" как продолжение.
func BuildPrompt(history []conversation.Message, question string) string {
	var b strings.Builder
	b.WriteString("Here is the conversation so far:\n")
	if h := conversation.FormatHistory(history); h != "" {
		b.WriteString(h)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "The child is now asking: %q\n\n", question)
	b.WriteString("Provide your JSON response.")
	return b.String()
}

// ImageGenerationPrompt добавляет стилевой префикс к описанию картинки.
func ImageGenerationPrompt(imagePrompt string) string {
	return ImagePrefix + imagePrompt
}

// DataURI кодирует байты картинки в data URI.
func DataURI(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}
