package voice

import (
	"strings"

	"whybot/internal/service/tts"
)

// SelectVoice выбирает «детский» голос по подсказкам.
// Кандидаты фильтруются по префиксу языка (en подходит к en-US). Подсказки идут по убыванию
// приоритета: совпадение в имени весит вдвое больше совпадения по полу. При равенстве побеждает
// точное совпадение языка, затем порядок провайдера. Без подходящего языка возвращается fallback.
func SelectVoice(voices []tts.Voice, lang string, hints []string, fallback string) string {
	prefix := strings.ToLower(lang)
	if i := strings.IndexByte(prefix, '-'); i > 0 {
		prefix = prefix[:i]
	}

	best := ""
	bestScore, bestExact := -1, false
	for _, v := range voices {
		ok, exact := matchLanguage(v.LanguageCodes, prefix, lang)
		if !ok {
			continue
		}
		score := hintScore(v, hints)
		if score > bestScore || (score == bestScore && exact && !bestExact) {
			best, bestScore, bestExact = v.Name, score, exact
		}
	}
	if best == "" {
		return fallback
	}
	return best
}

func matchLanguage(codes []string, prefix, lang string) (ok, exact bool) {
	if prefix == "" {
		return true, false
	}
	for _, c := range codes {
		if strings.EqualFold(c, lang) {
			return true, true
		}
		if strings.HasPrefix(strings.ToLower(c), prefix) {
			ok = true
		}
	}
	return ok, false
}

func hintScore(v tts.Voice, hints []string) int {
	name := strings.ToLower(v.Name)
	score := 0
	for i, h := range hints {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		weight := len(hints) - i
		if strings.Contains(name, h) {
			score += 2 * weight
		}
		if strings.EqualFold(v.Gender, h) {
			score += weight
		}
	}
	return score
}
