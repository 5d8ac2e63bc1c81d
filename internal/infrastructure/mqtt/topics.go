package mqtt

import "strings"

// DefaultTopicPrefix roots every topic when none is configured.
const DefaultTopicPrefix = "yatori"

// Topics builds the runner's topic hierarchy under a prefix:
//
//	yatori/runner/status             retained online/offline (LWT)
//	yatori/session/<state>           one message per terminal outcome
//	yatori/session/last              retained copy of the latest outcome
type Topics struct {
	Prefix string
}

func (t Topics) root() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// Status returns the retained runner availability topic.
func (t Topics) Status() string {
	return t.root() + "/runner/status"
}

// Session returns the topic for outcomes ending in the given state.
func (t Topics) Session(state string) string {
	return t.root() + "/session/" + state
}

// LastSession returns the retained latest-outcome topic.
func (t Topics) LastSession() string {
	return t.root() + "/session/last"
}

// AllSessions returns a wildcard matching every per-state session topic.
func (t Topics) AllSessions() string {
	return t.root() + "/session/+"
}
