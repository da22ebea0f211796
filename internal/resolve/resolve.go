// Package resolve expands a requested item set into the closure of items
// required to use it, consulting a DecisionMaker whenever declared
// dependencies are neither installed nor already scheduled.
//
// Dependency graphs are not assumed to be acyclic: each id is walked at most
// once, and an id becomes "safe" as soon as it enters the queue.
package resolve

import (
	"errors"
	"fmt"
	"strings"

	"modsync/internal/logx"
	"modsync/internal/metadata"
	"modsync/internal/registry"
)

// ErrCancelled is returned when the DecisionMaker cancels at any node. The
// whole resolution is abandoned, not just the branch being decided.
var ErrCancelled = errors.New("dependency resolution cancelled")

// Dependency is an id/name pair presented to or chosen by a DecisionMaker.
type Dependency = metadata.Dependency

// DecisionRequest lists the missing dependencies of one item.
type DecisionRequest struct {
	CollectionID string
	ItemID       string
	ItemName     string
	Missing      []Dependency
}

// Decision is the DecisionMaker's answer. Chosen may be empty and ids that
// were not in the request's Missing list are ignored. Cancelled aborts
// resolution.
type Decision struct {
	Chosen    []Dependency
	Cancelled bool
}

// DecisionMaker is asked once per item whose dependencies are missing.
type DecisionMaker interface {
	Decide(req DecisionRequest) (Decision, error)
}

// DecisionFunc adapts a function to DecisionMaker.
type DecisionFunc func(req DecisionRequest) (Decision, error)

// Decide implements DecisionMaker.
func (f DecisionFunc) Decide(req DecisionRequest) (Decision, error) {
	return f(req)
}

// IncludeAll accepts every missing dependency.
var IncludeAll = DecisionFunc(func(req DecisionRequest) (Decision, error) {
	chosen := make([]Dependency, len(req.Missing))
	copy(chosen, req.Missing)
	return Decision{Chosen: chosen}, nil
})

// IncludeNone declines every missing dependency without cancelling.
var IncludeNone = DecisionFunc(func(DecisionRequest) (Decision, error) {
	return Decision{}, nil
})

// PendingAdder registers a newly chosen dependency as pending. It reports
// false when the id was already tracked.
type PendingAdder interface {
	AddPendingItem(collectionID, id, name string) (bool, error)
}

// Request is the input of a single resolution.
type Request struct {
	CollectionID string
	Requested    []registry.Item
	InstalledIDs map[string]struct{}
}

// Resolver walks declared dependencies breadth-first.
type Resolver struct {
	Metadata metadata.Lookup
	Decider  DecisionMaker
	// Pending is optional; when set, chosen dependencies are recorded in
	// the registry as pending.
	Pending PendingAdder
	// OnPending observes every dependency added to the queue. added is the
	// registry's answer (false when it was already tracked or Pending is nil).
	OnPending func(dep Dependency, added bool)
	Logger    logx.Logger
}

// Resolve returns the requested items followed by every dependency chosen
// along the way, each id once. It returns ErrCancelled when the
// DecisionMaker cancels.
func (r *Resolver) Resolve(req Request) ([]registry.Item, error) {
	if r.Metadata == nil {
		return nil, errors.New("resolve: metadata lookup is nil")
	}
	if r.Decider == nil {
		return nil, errors.New("resolve: decision maker is nil")
	}
	logger := logx.OrNop(r.Logger)

	queue := make(map[string]registry.Item, len(req.Requested))
	order := make([]string, 0, len(req.Requested))
	work := make([]string, 0, len(req.Requested))
	for _, item := range req.Requested {
		if item.ID == "" {
			continue
		}
		if _, dup := queue[item.ID]; dup {
			continue
		}
		queue[item.ID] = item
		order = append(order, item.ID)
		work = append(work, item.ID)
	}

	processed := make(map[string]struct{}, len(queue))
	for len(work) > 0 {
		id := work[0]
		work = work[1:]
		if _, done := processed[id]; done {
			continue
		}

		meta, ok := r.Metadata.Get(req.CollectionID, id)
		if !ok || len(meta.Dependencies) == 0 {
			processed[id] = struct{}{}
			continue
		}

		missing := missingDependencies(meta.Dependencies, req.InstalledIDs, queue)
		if len(missing) > 0 {
			logger.Printf("resolve collection=%s item=%s missing=%d", req.CollectionID, id, len(missing))
			decision, err := r.Decider.Decide(DecisionRequest{
				CollectionID: req.CollectionID,
				ItemID:       id,
				ItemName:     queue[id].Name,
				Missing:      missing,
			})
			if err != nil {
				return nil, fmt.Errorf("decide dependencies of %s: %w", id, err)
			}
			if decision.Cancelled {
				logger.Printf("resolve collection=%s cancelled at item=%s", req.CollectionID, id)
				return nil, ErrCancelled
			}

			names := make(map[string]string, len(missing))
			for _, dep := range missing {
				names[dep.ID] = dep.Name
			}
			// Only ids that were offered as missing can be chosen.
			for _, dep := range decision.Chosen {
				dep.ID = strings.TrimSpace(dep.ID)
				name, offered := names[dep.ID]
				if !offered {
					continue
				}
				if _, queued := queue[dep.ID]; queued {
					continue
				}
				if dep.Name == "" {
					dep.Name = name
				}
				queue[dep.ID] = registry.Item{ID: dep.ID, Name: dep.Name, Status: registry.StatusPending}
				order = append(order, dep.ID)
				work = append(work, dep.ID)

				added := false
				if r.Pending != nil {
					added, err = r.Pending.AddPendingItem(req.CollectionID, dep.ID, dep.Name)
					if err != nil {
						return nil, fmt.Errorf("register dependency %s: %w", dep.ID, err)
					}
				}
				if r.OnPending != nil {
					r.OnPending(dep, added)
				}
			}
		}

		processed[id] = struct{}{}
	}

	out := make([]registry.Item, 0, len(order))
	for _, id := range order {
		out = append(out, queue[id])
	}
	return out, nil
}

// missingDependencies returns declared dependencies that are neither
// installed nor queued, de-duplicated by id in declaration order.
func missingDependencies(deps []Dependency, installed map[string]struct{}, queue map[string]registry.Item) []Dependency {
	var missing []Dependency
	seen := make(map[string]struct{}, len(deps))
	for _, dep := range deps {
		if dep.ID == "" {
			continue
		}
		if _, ok := installed[dep.ID]; ok {
			continue
		}
		if _, ok := queue[dep.ID]; ok {
			continue
		}
		if _, ok := seen[dep.ID]; ok {
			continue
		}
		seen[dep.ID] = struct{}{}
		if dep.Name == "" {
			dep.Name = "Item " + dep.ID
		}
		missing = append(missing, dep)
	}
	return missing
}
