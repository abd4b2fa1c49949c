// Package protocol описывает закрытый набор сообщений канала реального времени.
// Имена событий на проводе разбираются один раз на границе канала,
// дальше по коду ходят только типизированные сообщения.
package protocol

// Kind - вид сообщения канала
type Kind int

const (
	KindJoinRoom Kind = iota + 1
	KindLeaveRoom
	KindProviderLocation
	KindRequesterLocation
	KindProviderLocationUpdated
	KindRequesterLocationUpdated
	KindResponseCreated
	KindStatusUpdated
	KindUpdateProviderStatus
	KindProviderStatusUpdated
	KindNotificationCreated
)

type kindInfo struct {
	event   string
	inbound bool
}

var kinds = map[Kind]kindInfo{
	KindJoinRoom:                 {event: "joinEmergencyRoom"},
	KindLeaveRoom:                {event: "leaveEmergencyRoom"},
	KindProviderLocation:         {event: "sendLocation"},
	KindRequesterLocation:        {event: "sendUserLocation"},
	KindProviderLocationUpdated:  {event: "updateLocation", inbound: true},
	KindRequesterLocationUpdated: {event: "updateUserLocation", inbound: true},
	KindResponseCreated:          {event: "emergencyResponseCreated", inbound: true},
	KindStatusUpdated:            {event: "emergencyResponseStatusUpdated", inbound: true},
	KindUpdateProviderStatus:     {event: "updateProviderStatus"},
	KindProviderStatusUpdated:    {event: "providerStatusUpdated", inbound: true},
	KindNotificationCreated:      {event: "notificationCreated", inbound: true},
}

var byEvent = func() map[string]Kind {
	m := make(map[string]Kind, len(kinds))
	for k, info := range kinds {
		m[info.event] = k
	}
	return m
}()

// Event возвращает имя события на проводе
func (k Kind) Event() string {
	if info, ok := kinds[k]; ok {
		return info.event
	}
	return "unknown"
}

func (k Kind) String() string {
	return k.Event()
}

// Inbound - сообщение приходит от сервера
func (k Kind) Inbound() bool {
	return kinds[k].inbound
}

// KindOf находит вид сообщения по имени события
func KindOf(event string) (Kind, bool) {
	k, ok := byEvent[event]
	return k, ok
}
