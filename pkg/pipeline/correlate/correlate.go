// Package correlate maps batch results back to the entities that produced them.
package correlate

import (
	"github.com/shpitdev/couch-xray/internal/errors"
	"github.com/shpitdev/couch-xray/pkg/pipeline/core"
	"github.com/shpitdev/couch-xray/pkg/pipeline/worker"
)

// Strategy is the correlation choice a stage makes up front.
type Strategy int

const (
	// Positional pairs the i-th delivered result with entities[i]. Requires
	// submission-ordered delivery over requests built in entity order.
	Positional Strategy = iota
	// Tagged looks entities up by the ID echoed back with each response.
	Tagged
)

func (s Strategy) String() string {
	if s == Tagged {
		return "tagged"
	}
	return "positional"
}

// Delivery returns the executor mode the strategy needs.
func (s Strategy) Delivery() worker.Delivery {
	if s == Tagged {
		return worker.DeliveryCompletion
	}
	return worker.DeliverySubmission
}

// Correlator resolves results to positions in the entity slice it was built for.
// A Correlator is single-use and not safe for concurrent use; the executor
// delivers results from one goroutine.
type Correlator interface {
	Resolve(res core.Result) (int, error)
}

// New builds the correlator for entities. Tagged correlation rejects
// duplicate entity IDs.
func New(s Strategy, entities []core.Entity) (Correlator, error) {
	switch s {
	case Positional:
		ids := make([]string, len(entities))
		for i, e := range entities {
			ids[i] = e.ID()
		}
		return &positional{ids: ids}, nil
	case Tagged:
		byID := make(map[string]int, len(entities))
		for i, e := range entities {
			id := e.ID()
			if prev, ok := byID[id]; ok {
				return nil, errors.AssertionFailedf("duplicate entity id %q at positions %d and %d", id, prev, i)
			}
			byID[id] = i
		}
		return &tagged{byID: byID}, nil
	default:
		return nil, errors.AssertionFailedf("unknown correlation strategy %d", int(s))
	}
}

type positional struct {
	ids    []string
	cursor int
}

func (p *positional) Resolve(res core.Result) (int, error) {
	i := p.cursor
	if i >= len(p.ids) {
		return 0, errors.AssertionFailedf("result %d for %q beyond %d entities", i, res.ID, len(p.ids))
	}
	if res.Index != i {
		return 0, errors.AssertionFailedf("out-of-order result: position %d carries request %d", i, res.Index)
	}
	if res.ID != "" && res.ID != p.ids[i] {
		return 0, errors.AssertionFailedf("result at position %d is for %q, expected %q", i, res.ID, p.ids[i])
	}
	p.cursor++
	return i, nil
}

type tagged struct {
	byID map[string]int
}

func (t *tagged) Resolve(res core.Result) (int, error) {
	i, ok := t.byID[res.ID]
	if !ok {
		return 0, errors.AssertionFailedf("result tagged %q matches no entity", res.ID)
	}
	return i, nil
}
