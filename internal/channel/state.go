package channel

import "time"

// State - состояние соединения канала
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	// StateFailed - попытки переподключения исчерпаны
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ReconnectPolicy - фиксированная задержка между попытками
type ReconnectPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultReconnectPolicy - 5 попыток раз в секунду
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Attempts: 5,
		Delay:    1 * time.Second,
	}
}
