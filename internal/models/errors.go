package models

import "errors"

var (
	ErrNotFound        = errors.New("entity not found")
	ErrInternalServer  = errors.New("internal server error")
	ErrChatNotFound    = errors.New("chat not found")
	ErrPersonaNotFound = errors.New("persona not found")

	// ErrChatAlreadyProcessing возвращается, когда пайплайн для чата уже выполняется.
	// Это не повод для retry: решение о повторе принимает вызывающая сторона (ingestion).
	ErrChatAlreadyProcessing = errors.New("chat is already being processed")

	// ErrInvalidStateFormat - состояние диалога не прошло строгий парсинг.
	ErrInvalidStateFormat = errors.New("invalid conversation state format")
)
