package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных монитора в Redis
	RedisNamespace = "devit:pulse"
)

// Ключи для Hash (зеркало состояния)
const (
	RedisKeyAgentsHash = RedisNamespace + ":agents" // HSET agent_id -> JSON AgentStatus
	RedisKeyTasksHash  = RedisNamespace + ":tasks"  // HSET task_id -> JSON TaskMetrics
)

// Каналы Pub/Sub (события)
const (
	// RedisChanAlerts — трансляция новых алертов внешним подписчикам (fire-and-forget).
	RedisChanAlerts = RedisNamespace + ":alerts-signal"
)
