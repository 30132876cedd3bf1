package brains

import "errors"

var (
	// errInvalidResponse - ответ модели не прошел семантическую валидацию brain'а.
	// Отличается от транспортных ошибок ai.ErrAIGenerationFailed: обе retryable,
	// но на разных уровнях.
	errInvalidResponse = errors.New("invalid model response")

	// ErrImagePlanFailed - Image Prompt Engineer исчерпал попытки. В отличие от
	// остальных brains терминальный сбой здесь фатален и пробрасывается выше:
	// фоновая ветка оркестратора ловит его и просто пропускает изображение.
	ErrImagePlanFailed = errors.New("image plan generation failed")
)
