/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

// Stage is a step of serving a connection.
// Stages advance in declaration order and Closed is reachable from each of them.
type Stage int

// Connection serving stages.
const (
	StageParsing Stage = iota
	StageRateLimiting
	StageCacheLookup
	StageBackend
	StageCacheStore
	StageRespond
	StageClosed
)

var stageNames = [...]string{
	StageParsing:      "parsing",
	StageRateLimiting: "rate_limiting",
	StageCacheLookup:  "cache_lookup",
	StageBackend:      "backend",
	StageCacheStore:   "cache_store",
	StageRespond:      "respond",
	StageClosed:       "closed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}
