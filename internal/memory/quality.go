package memory

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// memoryMaxLen - жесткий предел длины памяти в символах.
	memoryMaxLen = 1000
	// memoryMinLen - минимальная осмысленная длина извлеченной памяти.
	memoryMinLen = 10

	// repeatedSentenceLimit - одно и то же предложение N и более раз = зацикливание.
	repeatedSentenceLimit = 3
	// uniqueRatioThreshold - минимальная доля уникальных предложений.
	uniqueRatioThreshold = 0.5
	// uniqueRatioMinSentences - порог применяется начиная с этого числа предложений.
	uniqueRatioMinSentences = 5
	// vagueRatioThreshold - доля "водянистых" предложений, при которой память отклоняется.
	vagueRatioThreshold = 0.6
)

// roleConfusionPatterns - фразы, означающие, что модель перепутала роли
// (приписала пользователю роль AI/персонажа или наоборот).
var roleConfusionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bthe user is (an? )?(ai|assistant|bot|chatbot|character)\b`),
	regexp.MustCompile(`(?i)\buser (is playing|plays) the (ai|assistant|character)\b`),
	regexp.MustCompile(`(?i)\bi am the user\b`),
	regexp.MustCompile(`(?i)\bas an ai\b`),
	regexp.MustCompile(`(?i)\bthe user asked me to pretend to be (him|her|them)\b`),
}

// vaguePhrases - шаблонные фразы без фактического содержания.
var vaguePhrases = []string{
	"enjoys talking",
	"likes to chat",
	"enjoys chatting",
	"had a nice conversation",
	"seems friendly",
	"seems nice",
	"general conversation",
	"nothing specific",
	"likes the companion",
	"is interested in talking",
}

// splitSentences режет текст на предложения по терминальной пунктуации.
func splitSentences(text string) []string {
	raw := regexp.MustCompile(`[.!?]+`).Split(text, -1)
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// ReviseMemory прогоняет кандидата через контроль качества.
// Возвращает (новая память, "") при принятии либо (прежняя память, причина)
// при отклонении. При отклонении прежняя память возвращается без изменений -
// вызов идемпотентен относительно current.
func ReviseMemory(candidate, current string) (string, string) {
	candidate = strings.TrimSpace(candidate)

	if len(candidate) > memoryMaxLen {
		return current, fmt.Sprintf("memory too long: %d > %d chars", len(candidate), memoryMaxLen)
	}

	if len(candidate) < memoryMinLen {
		// Первое взаимодействие: короткая память допустима, если прежней тоже не было
		if strings.TrimSpace(current) == "" {
			return candidate, ""
		}
		return current, fmt.Sprintf("memory too short: %d < %d chars", len(candidate), memoryMinLen)
	}

	sentences := splitSentences(candidate)

	// Зацикливание: одно предложение повторяется repeatedSentenceLimit и более раз
	counts := make(map[string]int, len(sentences))
	for _, s := range sentences {
		counts[strings.ToLower(s)]++
	}
	for sentence, n := range counts {
		if n >= repeatedSentenceLimit {
			return current, fmt.Sprintf("sentence repeated %d times: %q", n, sentence)
		}
	}

	// Общая доля уникальных предложений
	if len(sentences) >= uniqueRatioMinSentences {
		ratio := float64(len(counts)) / float64(len(sentences))
		if ratio < uniqueRatioThreshold {
			return current, fmt.Sprintf("unique sentence ratio too low: %.2f", ratio)
		}
	}

	// Путаница ролей
	for _, pattern := range roleConfusionPatterns {
		if pattern.MatchString(candidate) {
			return current, fmt.Sprintf("role confusion detected: pattern %q", pattern.String())
		}
	}

	// Водянистость: слишком много шаблонных предложений без фактов
	if len(sentences) > 0 {
		vague := 0
		for _, s := range sentences {
			lowered := strings.ToLower(s)
			for _, phrase := range vaguePhrases {
				if strings.Contains(lowered, phrase) {
					vague++
					break
				}
			}
		}
		if float64(vague)/float64(len(sentences)) >= vagueRatioThreshold {
			return current, fmt.Sprintf("too much vague boilerplate: %d of %d sentences", vague, len(sentences))
		}
	}

	return candidate, ""
}
