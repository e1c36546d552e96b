package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const liveWriteTimeout = 10 * time.Second

// LiveHandler пушит собранный дашборд-срез в WebSocket с фиксированным
// интервалом. Подписчик ничего не шлет; read-pump нужен только чтобы
// поймать закрытие соединения клиентом.
type LiveHandler struct {
	source   SnapshotSource
	interval time.Duration
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewLiveHandler(source SnapshotSource, interval time.Duration, logger *zap.Logger) *LiveHandler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &LiveHandler{
		source:   source,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Периметр уже закрыт JWT-middleware, Origin не ограничиваем
				return true
			},
		},
		logger: logger.Named("live-api"),
	}
}

// Stream держит соединение открытым и шлет срезы до отключения клиента.
// GET /api/v1/dashboard/live (WebSocket)
func (h *LiveHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам ответил клиенту ошибкой
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Read-pump: вычитываем входящие (включая close-фреймы), чтобы заметить уход клиента
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	h.logger.Debug("live subscriber connected", zap.String("remote", r.RemoteAddr))

	push := func() error {
		conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		return conn.WriteJSON(h.source.Assemble())
	}

	// Немедленный первый кадр: дашборд не должен ждать целый интервал
	if err := push(); err != nil {
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := push(); err != nil {
				h.logger.Debug("live subscriber dropped", zap.String("remote", r.RemoteAddr), zap.Error(err))
				return
			}
		case <-ctx.Done():
			h.logger.Debug("live subscriber disconnected", zap.String("remote", r.RemoteAddr))
			return
		}
	}
}
