package scheduler

import "time"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	tz := s.cfg.Timezone
	workers := s.cfg.Workers
	defs := make([]triggerDef, len(s.defs))
	copy(defs, s.defs)
	c := s.c
	loc := s.loc
	ql := 0
	if s.queue != nil {
		ql = len(s.queue)
	}
	s.mu.Unlock()

	if loc == nil {
		loc = time.Local
	}
	if tz == "" {
		tz = loc.String()
	}

	items := make([]TriggerInfo, 0, len(defs))
	for _, d := range defs {
		it := TriggerInfo{
			ID: d.id, Name: d.name, Spec: d.spec, Timeout: d.timeout,
			Overlap: d.opt.Overlap, RetryMax: d.opt.RetryMax,
		}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		items = append(items, it)
	}

	s.hmu.Lock()
	hist := make([]HistoryItem, len(s.history))
	copy(hist, s.history)
	s.hmu.Unlock()

	return Snapshot{
		Timezone: tz,
		Workers:  workers,
		QueueLen: ql,
		Triggers: items,
		History:  hist,
	}
}
