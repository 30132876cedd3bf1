package models

import (
	"fmt"
	"strings"
)

// RelationshipStage - этап отношений между пользователем и персонажем.
type RelationshipStage string

const (
	StageStranger     RelationshipStage = "stranger"
	StageAcquaintance RelationshipStage = "acquaintance"
	StageFriend       RelationshipStage = "friend"
	StageCrush        RelationshipStage = "crush"
	StageLover        RelationshipStage = "lover"
	StagePartner      RelationshipStage = "partner"
	StageEx           RelationshipStage = "ex"
)

// knownStages - допустимые значения relationshipStage.
var knownStages = map[RelationshipStage]bool{
	StageStranger:     true,
	StageAcquaintance: true,
	StageFriend:       true,
	StageCrush:        true,
	StageLover:        true,
	StagePartner:      true,
	StageEx:           true,
}

// stateMarkerPrefix - маркер начала валидной сериализации состояния.
const stateMarkerPrefix = `relationshipStage="`

// stateEmotionsMarker - второй обязательный маркер валидности.
const stateEmotionsMarker = `emotions="`

// ConversationState - структурированный снимок сцены/отношений, который должен
// связно эволюционировать на протяжении диалога. Все поля всегда присутствуют
// в сериализации; незаполненные значения сериализуются как пустые строки,
// но никогда не опускаются.
type ConversationState struct {
	RelationshipStage RelationshipStage
	Emotions          string
	MoodNotes         string
	Location          string
	Description       string
	AIClothing        string
	UserClothing      string
	TerminateDialog   bool
	TerminateReason   string
}

// stateKeyOrder - фиксированный порядок ключей в сериализации.
// Порядок является частью контракта формата: первая пара всегда relationshipStage.
var stateKeyOrder = []string{
	"relationshipStage",
	"emotions",
	"moodNotes",
	"location",
	"description",
	"aiClothing",
	"userClothing",
	"terminateDialog",
	"terminateReason",
}

// sanitizeStateValue убирает из значения символы, ломающие формат key="value"|...
func sanitizeStateValue(v string) string {
	v = strings.ReplaceAll(v, "|", "/")
	v = strings.ReplaceAll(v, `"`, `'`)
	v = strings.ReplaceAll(v, "\n", " ")
	return strings.TrimSpace(v)
}

// Serialize возвращает каноническую строковую форму состояния:
// key="value" пары, соединенные '|', в фиксированном порядке ключей.
func (s *ConversationState) Serialize() string {
	values := map[string]string{
		"relationshipStage": string(s.RelationshipStage),
		"emotions":          s.Emotions,
		"moodNotes":         s.MoodNotes,
		"location":          s.Location,
		"description":       s.Description,
		"aiClothing":        s.AIClothing,
		"userClothing":      s.UserClothing,
		"terminateDialog":   fmt.Sprintf("%t", s.TerminateDialog),
		"terminateReason":   s.TerminateReason,
	}

	pairs := make([]string, 0, len(stateKeyOrder))
	for _, key := range stateKeyOrder {
		pairs = append(pairs, fmt.Sprintf(`%s="%s"`, key, sanitizeStateValue(values[key])))
	}
	return strings.Join(pairs, "|")
}

// IsValidStateString проверяет два маркера валидности сериализованного состояния.
func IsValidStateString(s string) bool {
	return strings.HasPrefix(s, stateMarkerPrefix) && strings.Contains(s, stateEmotionsMarker)
}

// ParseConversationState - строгий парсер сериализованного состояния.
// Возвращает ErrInvalidStateFormat, если строка не соответствует контракту
// (отсутствуют маркеры, пары не разбираются, relationshipStage неизвестен).
func ParseConversationState(raw string) (*ConversationState, error) {
	raw = strings.TrimSpace(raw)
	if !IsValidStateString(raw) {
		return nil, fmt.Errorf("%w: missing format markers", ErrInvalidStateFormat)
	}

	state := &ConversationState{}
	for _, pair := range strings.Split(raw, "|") {
		key, quoted, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("%w: malformed pair %q", ErrInvalidStateFormat, pair)
		}
		key = strings.TrimSpace(key)
		quoted = strings.TrimSpace(quoted)
		if len(quoted) < 2 || !strings.HasPrefix(quoted, `"`) || !strings.HasSuffix(quoted, `"`) {
			return nil, fmt.Errorf("%w: value for %q is not quoted", ErrInvalidStateFormat, key)
		}
		value := quoted[1 : len(quoted)-1]

		switch key {
		case "relationshipStage":
			stage := RelationshipStage(strings.ToLower(strings.TrimSpace(value)))
			if !knownStages[stage] {
				return nil, fmt.Errorf("%w: unknown relationship stage %q", ErrInvalidStateFormat, value)
			}
			state.RelationshipStage = stage
		case "emotions":
			state.Emotions = value
		case "moodNotes":
			state.MoodNotes = value
		case "location":
			state.Location = value
		case "description":
			state.Description = value
		case "aiClothing":
			state.AIClothing = value
		case "userClothing":
			state.UserClothing = value
		case "terminateDialog":
			state.TerminateDialog = strings.EqualFold(strings.TrimSpace(value), "true")
		case "terminateReason":
			state.TerminateReason = value
		default:
			// Неизвестные ключи игнорируем: модель иногда добавляет лишние поля,
			// и это не повод отбрасывать в остальном валидное состояние.
		}
	}

	return state, nil
}

// ParseConversationStateLenient - толерантный режим парсинга для «шумных» ответов LLM.
// Сканирует ответ построчно и пытается спасти первую строку, начинающуюся с маркера
// состояния. Отличается от строгого конструктора тем, что допускает мусор вокруг.
func ParseConversationStateLenient(raw string) (*ConversationState, error) {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		// Модель может обернуть состояние в маркдаун или префиксы вида "State: ..."
		if idx := strings.Index(line, stateMarkerPrefix); idx > 0 {
			line = line[idx:]
		}
		line = strings.TrimSuffix(line, "```")
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, stateMarkerPrefix) {
			continue
		}
		if state, err := ParseConversationState(line); err == nil {
			return state, nil
		}
	}
	return nil, fmt.Errorf("%w: no salvageable state line found", ErrInvalidStateFormat)
}
