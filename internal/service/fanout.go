package service

import "github.com/lstlabs/vaultgate/internal/model"

// Fanout delivers each event to every sink in order. Sinks must be
// non-blocking; both the journal and the stream hub buffer internally.
type Fanout []interface{ Emit(e *model.Event) }

func (f Fanout) Emit(e *model.Event) {
	for _, sink := range f {
		sink.Emit(e)
	}
}
