package localstore

// Change signals that at least one watched table was mutated. Notifications
// coalesce: while one is pending, later mutations fold into it. Seq is the
// store's mutation counter at the time the pending notification was queued.
type Change struct {
	Seq uint64
}

type watcher struct {
	tables map[Table]bool
	ch     chan Change
}

// Watch registers a live query over tables. Every mutation of one of them
// is reported at least once on the returned channel until cancel is called.
// Watching no tables watches all of them.
func (s *Store) Watch(tables ...Table) (<-chan Change, func()) {
	w := &watcher{tables: make(map[Table]bool, len(tables)), ch: make(chan Change, 1)}
	for _, t := range tables {
		w.tables[t] = true
	}
	s.mu.Lock()
	s.watchers[w] = struct{}{}
	s.mu.Unlock()
	s.log.Trace("local store watch", "tables", len(tables))
	return w.ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[w]; ok {
			delete(s.watchers, w)
			close(w.ch)
		}
	}
}

func (s *Store) notify(tables ...Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	for w := range s.watchers {
		if !w.matches(tables) {
			continue
		}
		select {
		case w.ch <- Change{Seq: s.seq}:
		default:
		}
	}
}

func (w *watcher) matches(tables []Table) bool {
	if len(w.tables) == 0 {
		return true
	}
	for _, t := range tables {
		if w.tables[t] {
			return true
		}
	}
	return false
}
