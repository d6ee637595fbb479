package phoenix

import (
	"sort"

	"github.com/eljojo/phoenix/types"
)

// NameConflict lists every identity currently claiming the same display name.
type NameConflict struct {
	Type  string         `json:"type"`
	Name  string         `json:"name"`
	IDs   []types.FeedID `json:"ids"`
	Owner types.FeedID   `json:"owner"`
}

type nameClaim struct {
	rank float64
	seq  uint64
}

// NameBindings resolves display names and their reverse lookup.
//
// Every identity claims the name it is currently bound to, backed by the trust
// rank of that binding. The owner of a name is the claimant with the highest
// rank; among equal ranks the most recent claim wins. Shadowed claimants stay
// recorded so conflicts can be listed.
type NameBindings struct {
	names  map[types.FeedID]string
	ids    map[string]types.FeedID
	ranks  map[types.FeedID]float64
	claims map[string]map[types.FeedID]nameClaim
	seq    uint64
}

func NewNameBindings() *NameBindings {
	return &NameBindings{
		names:  make(map[types.FeedID]string),
		ids:    make(map[string]types.FeedID),
		ranks:  make(map[types.FeedID]float64),
		claims: make(map[string]map[types.FeedID]nameClaim),
	}
}

// Bind sets the display name of id (empty for none) backed by rank.
func (b *NameBindings) Bind(id types.FeedID, name string, rank float64) {
	b.seq++

	if old, ok := b.names[id]; ok && old != name {
		b.withdraw(id, old)
	}
	b.ranks[id] = rank

	if name == "" {
		delete(b.names, id)
		return
	}
	b.names[id] = name

	claimants, ok := b.claims[name]
	if !ok {
		claimants = make(map[types.FeedID]nameClaim)
		b.claims[name] = claimants
	}
	claimants[id] = nameClaim{rank: rank, seq: b.seq}

	owner, owned := b.ids[name]
	switch {
	case !owned:
		b.ids[name] = id
	case owner == id:
		// the owner's own rank may have dropped below a shadowed claimant
		b.elect(name)
	case rank >= claimants[owner].rank:
		b.ids[name] = id
	}
}

func (b *NameBindings) withdraw(id types.FeedID, name string) {
	claimants := b.claims[name]
	delete(claimants, id)
	if len(claimants) == 0 {
		delete(b.claims, name)
		delete(b.ids, name)
		return
	}
	if b.ids[name] == id {
		b.elect(name)
	}
}

func (b *NameBindings) elect(name string) {
	var (
		best  types.FeedID
		claim nameClaim
		found bool
	)
	for id, c := range b.claims[name] {
		if !found || c.rank > claim.rank || (c.rank == claim.rank && c.seq > claim.seq) {
			best, claim, found = id, c, true
		}
	}
	if found {
		b.ids[name] = best
	}
}

// Name returns the display name bound to id.
func (b *NameBindings) Name(id types.FeedID) (string, bool) {
	name, ok := b.names[id]
	return name, ok
}

// Owner returns the identity currently owning name.
func (b *NameBindings) Owner(name string) (types.FeedID, bool) {
	id, ok := b.ids[name]
	return id, ok
}

// Rank returns the trust rank backing id's current binding.
func (b *NameBindings) Rank(id types.FeedID) float64 {
	return b.ranks[id]
}

// NamesByID returns a copy of the id -> name map.
func (b *NameBindings) NamesByID() map[types.FeedID]string {
	out := make(map[types.FeedID]string, len(b.names))
	for id, name := range b.names {
		out[id] = name
	}
	return out
}

// IDsByName returns a copy of the name -> owner map.
func (b *NameBindings) IDsByName() map[string]types.FeedID {
	out := make(map[string]types.FeedID, len(b.ids))
	for name, id := range b.ids {
		out[name] = id
	}
	return out
}

// Conflicts lists names claimed by more than one identity, sorted by name.
func (b *NameBindings) Conflicts() []NameConflict {
	var out []NameConflict
	for name, claimants := range b.claims {
		if len(claimants) < 2 {
			continue
		}
		ids := make([]types.FeedID, 0, len(claimants))
		for id := range claimants {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out = append(out, NameConflict{
			Type:  "name-conflict",
			Name:  name,
			IDs:   ids,
			Owner: b.ids[name],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
