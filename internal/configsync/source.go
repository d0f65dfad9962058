package configsync

// Source entrega SyncEvents al manager. El contrato es at-least-once con
// orden por entidad; el manager tolera duplicados y reordenamiento entre
// entidades distintas gracias al gate de revisión.
type Source interface {
	Events() <-chan Event
	Close() error
}

// ChanSource es un source in-process. Lo usan los tests y los despliegues
// donde el management plane corre embebido en el mismo proceso.
type ChanSource struct {
	ch chan Event
}

func NewChanSource(buffer int) *ChanSource {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChanSource{ch: make(chan Event, buffer)}
}

// Publish encola un evento. Bloquea si el buffer está lleno.
func (s *ChanSource) Publish(ev Event) {
	s.ch <- ev
}

func (s *ChanSource) Events() <-chan Event { return s.ch }

func (s *ChanSource) Close() error {
	close(s.ch)
	return nil
}
