package handler

import (
	"errors"
	"net/http"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

// statusForErr мапит доменные ошибки жизненного цикла в HTTP-статусы.
// Все, что не распознано, — 500: хэндлер не должен гадать.
func statusForErr(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownAgent), errors.Is(err, domain.ErrUnknownTask):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateAgent), errors.Is(err, domain.ErrDuplicateTask),
		errors.Is(err, domain.ErrAgentBusy), errors.Is(err, domain.ErrTaskFinished):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
