// Package agent maps pipeline agent and event names onto the fixed agent set.
package agent

import (
	"strings"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

// Match reports how a name was resolved.
type Match int

const (
	// Matched means the name contained a known agent keyword.
	Matched Match = iota
	// Fallback means nothing matched and the default agent was returned.
	Fallback
)

func (m Match) String() string {
	if m == Fallback {
		return "fallback"
	}
	return "matched"
}

// Default is returned for names that match no keyword.
const Default = domain.AgentJury

type rule struct {
	keyword string
	agent   domain.AgentID
}

// Order matters: the first keyword contained in the name wins.
var rules = []rule{
	{"jury", domain.AgentJury},
	{"primary", domain.AgentJury},
	{"critic", domain.AgentCritic},
	{"reviewer", domain.AgentCritic},
	{"judge", domain.AgentJudge},
}

// Resolve maps an agent, step or event name to an agent identity.
// It is total: unknown names resolve to Default with Fallback.
func Resolve(name string) (domain.AgentID, Match) {
	lower := strings.ToLower(name)
	for _, r := range rules {
		if strings.Contains(lower, r.keyword) {
			return r.agent, Matched
		}
	}
	return Default, Fallback
}

// Info is the display metadata of an agent.
type Info struct {
	ID    domain.AgentID
	Name  string
	Title string
}

var infos = map[domain.AgentID]Info{
	domain.AgentJury:   {ID: domain.AgentJury, Name: "Jury", Title: "Regulatory Analyst"},
	domain.AgentCritic: {ID: domain.AgentCritic, Name: "Critic", Title: "Design Critic"},
	domain.AgentJudge:  {ID: domain.AgentJudge, Name: "Judge", Title: "Compliance Judge"},
}

// Lookup returns the display metadata for id.
func Lookup(id domain.AgentID) (Info, bool) {
	info, ok := infos[id]
	return info, ok
}

// Name returns the display name of id, or the raw id when unknown.
func Name(id domain.AgentID) string {
	if info, ok := infos[id]; ok {
		return info.Name
	}
	return string(id)
}
