package phoenix

import (
	"sort"

	"github.com/eljojo/phoenix/types"
	"github.com/sirupsen/logrus"
)

// Trust levels backing a name binding
const (
	TrustNone     = 0.0 // self-declared name, nobody vouches for it
	TrustIndirect = 0.5 // name given by someone the local identity trusts
	TrustFull     = 1.0 // local identity itself, or a name it assigned
)

// Profile is what the log tells us about one identity.
type Profile struct {
	ID         types.FeedID            `json:"id"`
	SelfName   *string                 `json:"selfName"`
	AssignedBy map[types.FeedID]string `json:"assignedBy"`
	AssignedTo map[types.FeedID]string `json:"assignedTo"`
	Trust      float64                 `json:"trust"`
	CreatedAt  *int64                  `json:"createdAt"`
}

func (p *Profile) clone() *Profile {
	c := &Profile{
		ID:         p.ID,
		AssignedBy: make(map[types.FeedID]string, len(p.AssignedBy)),
		AssignedTo: make(map[types.FeedID]string, len(p.AssignedTo)),
		Trust:      p.Trust,
	}
	if p.SelfName != nil {
		name := *p.SelfName
		c.SelfName = &name
	}
	if p.CreatedAt != nil {
		ts := *p.CreatedAt
		c.CreatedAt = &ts
	}
	for k, v := range p.AssignedBy {
		c.AssignedBy[k] = v
	}
	for k, v := range p.AssignedTo {
		c.AssignedTo[k] = v
	}
	return c
}

func (s *State) getProfile(id types.FeedID) *Profile {
	p, ok := s.profiles[id]
	if !ok {
		p = &Profile{
			ID:         id,
			AssignedBy: make(map[types.FeedID]string),
			AssignedTo: make(map[types.FeedID]string),
		}
		s.profiles[id] = p
	}
	return p
}

func (s *State) recordInit(author types.FeedID, ts int64) {
	p := s.getProfile(author)
	if p.CreatedAt == nil {
		p.CreatedAt = &ts
	}
}

func (s *State) recordNameAssignment(author types.FeedID, content Content) {
	if empty(content.Name) {
		return
	}
	name := noSpaces(content.Name)

	links := content.LinksOf(RelNames)
	if len(links) == 0 {
		p := s.getProfile(author)
		p.SelfName = &name
		s.rebuildNamesFor(author)
		return
	}

	for _, link := range links {
		if link.Feed == "" {
			logrus.Debugf("names link from %s without a feed, skipping", author)
			continue
		}
		target := s.getProfile(link.Feed)
		target.AssignedBy[author] = name
		s.getProfile(author).AssignedTo[link.Feed] = name
		s.rebuildNamesFor(link.Feed)
	}
}

// recordTrustEdge only honors edges declared by the local identity.
func (s *State) recordTrustEdge(author, target types.FeedID, value any) {
	if author != s.me {
		return
	}

	p := s.getProfile(target)
	if truthy(value) {
		p.Trust = TrustFull
		s.trusted[target] = struct{}{}
	} else {
		p.Trust = TrustNone
		delete(s.trusted, target)
	}
	s.rebuildNamesBy(target)
}

// rebuildNamesFor recomputes the display name of id and its claim on it.
func (s *State) rebuildNamesFor(id types.FeedID) {
	p := s.getProfile(id)

	var name string
	if p.SelfName != nil {
		name = *p.SelfName
	}
	trust := TrustNone

	if id == s.me {
		trust = TrustFull
	} else if mine, ok := p.AssignedBy[s.me]; ok && mine != "" {
		name = mine
		trust = TrustFull
	} else {
		// lowest assigner id wins among trusted ones
		assigners := make([]types.FeedID, 0, len(p.AssignedBy))
		for by := range p.AssignedBy {
			assigners = append(assigners, by)
		}
		sort.Slice(assigners, func(i, j int) bool { return assigners[i] < assigners[j] })
		for _, by := range assigners {
			if _, ok := s.trusted[by]; ok && p.AssignedBy[by] != "" {
				name = p.AssignedBy[by]
				trust = TrustIndirect
				break
			}
		}
	}

	s.names.Bind(id, name, trust)
}

// rebuildNamesBy recomputes every identity that id has given a name to.
func (s *State) rebuildNamesBy(id types.FeedID) {
	p := s.getProfile(id)
	targets := make([]types.FeedID, 0, len(p.AssignedTo))
	for target := range p.AssignedTo {
		targets = append(targets, target)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	for _, target := range targets {
		s.rebuildNamesFor(target)
	}
}
