// Package resolver linearizes entities so principals are created before their dependents.
package resolver

import (
	"fmt"
	"strings"

	"github.com/Rana718/seedgraph/internal/fixerr"
	"github.com/Rana718/seedgraph/internal/schema"
)

// EdgeKind classifies a foreign key edge once the order is fixed.
type EdgeKind int

const (
	// Ordered edges point at a principal that appears earlier, or at the entity itself.
	Ordered EdgeKind = iota
	// Deferred edges were broken to escape a cycle; every dependent column is nullable.
	Deferred
	// Unsatisfiable edges belong to a cycle with no nullable foreign key to break it.
	Unsatisfiable
)

func (k EdgeKind) String() string {
	switch k {
	case Ordered:
		return "ordered"
	case Deferred:
		return "deferred"
	case Unsatisfiable:
		return "unsatisfiable"
	}
	return fmt.Sprintf("EdgeKind(%d)", int(k))
}

// Edge is one foreign key from a dependent entity to its principal.
type Edge struct {
	Dependent  string
	Principal  string
	ForeignKey string
	Columns    []string
	Kind       EdgeKind
}

func (e Edge) String() string {
	return fmt.Sprintf("%s(%s) -> %s [%s]", e.Dependent, strings.Join(e.Columns, ", "), e.Principal, e.ForeignKey)
}

// Resolution is the creation order of a schema plus its keyless entities.
type Resolution struct {
	order    []string
	keyless  []string
	position map[string]int
	edges    []Edge
	kinds    map[string]EdgeKind
	passes   int
}

// Resolve computes the dependency order of s. Entities are scanned in name order; each
// pass orders every entity whose principals are all ordered. Self references never block.
// At a fixed point the first cycle that depends on nothing else unordered is broken: its
// first member whose blocking foreign keys are all nullable is ordered and those edges
// deferred; failing that, the whole cycle is appended in name order and its forward edges
// marked unsatisfiable. Passes then resume, so entities hanging off a cycle keep their
// ordered edges.
func Resolve(s *schema.Schema) (*Resolution, error) {
	r := &Resolution{
		keyless:  s.Keyless(),
		position: make(map[string]int),
		kinds:    make(map[string]EdgeKind),
	}

	var remaining []*schema.Entity
	for _, e := range s.Entities() {
		if e.IsKeyless() {
			continue
		}
		for _, fk := range e.ForeignKeys {
			principal, ok := s.Entity(fk.Principal)
			if !ok {
				return nil, fixerr.NewSchemaError(e.Name, "foreign key %s references unknown entity %q", fk.Name, fk.Principal)
			}
			if principal.IsKeyless() {
				return nil, fixerr.NewSchemaError(e.Name, "foreign key %s references keyless entity %q", fk.Name, fk.Principal)
			}
			r.edges = append(r.edges, Edge{
				Dependent:  e.Name,
				Principal:  fk.Principal,
				ForeignKey: fk.Name,
				Columns:    fk.DependentColumns(),
			})
		}
		remaining = append(remaining, e)
	}

	for len(remaining) > 0 {
		r.passes++
		next := remaining[:0]
		for _, e := range remaining {
			if r.satisfied(e) {
				r.place(e.Name)
			} else {
				next = append(next, e)
			}
		}
		progressed := len(next) < len(remaining)
		remaining = next
		if progressed || len(remaining) == 0 {
			continue
		}

		cycle := r.bottomCycle(remaining)
		if e := r.deferrable(cycle); e != nil {
			for _, fk := range e.ForeignKeys {
				if r.blocks(e, fk) {
					r.kinds[edgeID(e.Name, fk.Name)] = Deferred
				}
			}
			r.place(e.Name)
			remaining = without(remaining, e.Name)
			continue
		}

		for _, e := range cycle {
			r.place(e.Name)
		}
		for _, e := range cycle {
			for _, fk := range e.ForeignKeys {
				if fk.Principal != e.Name && r.position[fk.Principal] > r.position[e.Name] {
					r.kinds[edgeID(e.Name, fk.Name)] = Unsatisfiable
				}
			}
		}
		next = remaining[:0]
		for _, e := range remaining {
			if _, ok := r.position[e.Name]; !ok {
				next = append(next, e)
			}
		}
		remaining = next
	}

	for i := range r.edges {
		r.edges[i].Kind = r.kinds[edgeID(r.edges[i].Dependent, r.edges[i].ForeignKey)]
	}
	return r, nil
}

func (r *Resolution) place(name string) {
	r.position[name] = len(r.order)
	r.order = append(r.order, name)
}

func (r *Resolution) satisfied(e *schema.Entity) bool {
	for _, fk := range e.ForeignKeys {
		if r.blocks(e, fk) {
			return false
		}
	}
	return true
}

// blocks reports whether fk points at another entity that is not ordered yet.
func (r *Resolution) blocks(e *schema.Entity, fk schema.ForeignKey) bool {
	if fk.Principal == e.Name {
		return false
	}
	_, ok := r.position[fk.Principal]
	return !ok
}

func (r *Resolution) deferrable(cycle []*schema.Entity) *schema.Entity {
	for _, e := range cycle {
		ok := true
		for _, fk := range e.ForeignKeys {
			if r.blocks(e, fk) && !e.Deferrable(fk) {
				ok = false
				break
			}
		}
		if ok {
			return e
		}
	}
	return nil
}

// bottomCycle returns, in name order, the members of the first strongly connected set of
// remaining entities whose blocking principals all lie inside the set. At a fixed point
// every remaining entity is blocked, so such a set always exists and forms a cycle.
func (r *Resolution) bottomCycle(remaining []*schema.Entity) []*schema.Entity {
	byName := make(map[string]*schema.Entity, len(remaining))
	for _, e := range remaining {
		byName[e.Name] = e
	}
	reach := make(map[string]map[string]bool, len(remaining))
	for _, e := range remaining {
		reach[e.Name] = r.reachable(e, byName)
	}
	for _, e := range remaining {
		from := reach[e.Name]
		if !from[e.Name] {
			continue
		}
		closed := true
		for name := range from {
			if !reach[name][e.Name] {
				closed = false
				break
			}
		}
		if !closed {
			continue
		}
		var cycle []*schema.Entity
		for _, m := range remaining {
			if from[m.Name] {
				cycle = append(cycle, m)
			}
		}
		return cycle
	}
	return remaining
}

// reachable collects the unordered entities reachable from e through blocking foreign keys.
func (r *Resolution) reachable(e *schema.Entity, byName map[string]*schema.Entity) map[string]bool {
	seen := make(map[string]bool)
	stack := []*schema.Entity{e}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, fk := range cur.ForeignKeys {
			if !r.blocks(cur, fk) || seen[fk.Principal] {
				continue
			}
			seen[fk.Principal] = true
			if p, ok := byName[fk.Principal]; ok {
				stack = append(stack, p)
			}
		}
	}
	return seen
}

func without(list []*schema.Entity, name string) []*schema.Entity {
	for i, e := range list {
		if e.Name == name {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func edgeID(entity, fk string) string { return entity + "\x00" + fk }

// Order returns the entity creation order.
func (r *Resolution) Order() []string { return append([]string(nil), r.order...) }

// Keyless returns the entities excluded from the order.
func (r *Resolution) Keyless() []string { return append([]string(nil), r.keyless...) }

// Position returns the index of entity in the order.
func (r *Resolution) Position(entity string) (int, bool) {
	i, ok := r.position[entity]
	return i, ok
}

// Passes returns the number of scans taken to reach the order.
func (r *Resolution) Passes() int { return r.passes }

// Edges returns every foreign key edge between keyful entities.
func (r *Resolution) Edges() []Edge { return append([]Edge(nil), r.edges...) }

// EdgeKind classifies the foreign key fk of entity.
func (r *Resolution) EdgeKind(entity, fk string) EdgeKind {
	return r.kinds[edgeID(entity, fk)]
}

// Deferred returns the edges broken to escape nullable cycles.
func (r *Resolution) Deferred() []Edge { return r.filter(Deferred) }

// Unsatisfiable returns the edges of cycles that could not be broken.
func (r *Resolution) Unsatisfiable() []Edge { return r.filter(Unsatisfiable) }

func (r *Resolution) filter(kind EdgeKind) []Edge {
	var out []Edge
	for _, e := range r.edges {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Describe renders the order and every relationship, one per line.
func (r *Resolution) Describe() string {
	byDependent := make(map[string][]Edge)
	for _, e := range r.edges {
		byDependent[e.Dependent] = append(byDependent[e.Dependent], e)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Dependency order (%d entities, %d passes):\n", len(r.order), r.passes)
	for i, name := range r.order {
		fmt.Fprintf(&sb, "%3d. %s\n", i+1, name)
		for _, e := range byDependent[name] {
			fmt.Fprintf(&sb, "       -> %s via %s (%s)", e.Principal, strings.Join(e.Columns, ", "), e.ForeignKey)
			if e.Kind != Ordered {
				fmt.Fprintf(&sb, " [%s]", e.Kind)
			}
			sb.WriteString("\n")
		}
	}
	if len(r.keyless) > 0 {
		fmt.Fprintf(&sb, "Keyless: %s\n", strings.Join(r.keyless, ", "))
	}
	return sb.String()
}
