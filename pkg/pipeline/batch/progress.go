package batch

// progressPump forwards completion counts to a Progress observer from its own
// goroutine. The channel holds at most one pending count; a newer count
// replaces an unread one, so a slow observer never stalls delivery.
type progressPump struct {
	p       Progress
	total   int
	updates chan int
	done    chan struct{}
}

func newProgressPump(p Progress, title string, total int) *progressPump {
	pp := &progressPump{p: p, total: total}
	if p == nil {
		return pp
	}
	pp.updates = make(chan int, 1)
	pp.done = make(chan struct{})
	p.Start(title, total)
	go func() {
		defer close(pp.done)
		for n := range pp.updates {
			p.Update(n, total)
		}
	}()
	return pp
}

// update is only called from the delivery goroutine.
func (pp *progressPump) update(n int) {
	if pp.p == nil {
		return
	}
	for {
		select {
		case pp.updates <- n:
			return
		default:
		}
		// Drop the stale count the observer has not picked up yet.
		select {
		case <-pp.updates:
		default:
		}
	}
}

func (pp *progressPump) stop() {
	if pp.p == nil {
		return
	}
	close(pp.updates)
	<-pp.done
	pp.p.Stop()
}
