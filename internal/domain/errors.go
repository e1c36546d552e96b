package domain

import "errors"

// Ошибки жизненного цикла. Горячий путь мониторинга на них не паникует:
// вызывающий слой логирует и продолжает, HTTP-слой мапит в статус-коды.
var (
	ErrDuplicateAgent = errors.New("agent already registered")
	ErrUnknownAgent   = errors.New("agent is not registered")
	ErrUnknownTask    = errors.New("task is not registered")
	ErrDuplicateTask  = errors.New("task id already in use")
	ErrAgentBusy      = errors.New("agent already has a task in flight")
	ErrTaskFinished   = errors.New("task already reached terminal state")

	// Бэкенд персистентности недоступен (circuit breaker открыт или сеть упала).
	// Деградация штатная: работаем только в памяти.
	ErrPersistenceDown = errors.New("persistence backend unavailable")
)
