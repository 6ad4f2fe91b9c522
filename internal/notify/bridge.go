package notify

import (
	"flickd/internal/session"
	"flickd/internal/store"
	"flickd/pkg/types"
)

// Broadcaster receives translated events.
type Broadcaster interface {
	Broadcast(ev types.Event)
}

// Bridge forwards store traffic to b: status keys only when their value
// changed, notification keys on every publish. The returned func detaches
// the bridge.
func Bridge(s *store.Store, b Broadcaster) (detach func()) {
	var cancels []func()
	for _, key := range []string{session.KeyTrainingStatus, session.KeyPredictionStatus, session.KeySourceAvailable} {
		cancels = append(cancels, s.OnChange(key, func(ev store.ChangeEvent) {
			if out, ok := Translate(ev.Key, ev.Value); ok {
				b.Broadcast(out)
			}
		}))
	}
	for _, key := range []string{session.KeyActionDetected, session.KeyActuatorFault} {
		sub := s.Subscribe(key, func(k string, payload any) {
			if out, ok := Translate(k, payload); ok {
				b.Broadcast(out)
			}
		})
		cancels = append(cancels, func() { s.Unsubscribe(sub) })
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}
