package main

import (
	"sync"
)

// playerInfo holds what has been learned about a player across the whole
// process lifetime. Fields are monotonic: once a valid value lands it is
// never overwritten, so a late garbage packet cannot clobber a good name.
type playerInfo struct {
	UID          uint64
	Name         string
	ClassID      int32
	SpecID       int32
	AbilityScore int64
	SpecName     string
}

var (
	players   = make(map[uint64]*playerInfo)
	playersMu sync.RWMutex
)

// playerUpdate carries candidate values into mergePlayer. Zero values mean
// "not observed"; names are additionally checked against the validity filter.
type playerUpdate struct {
	name         string
	classID      int32
	specID       int32
	abilityScore int64
	specName     string
}

// mergePlayer folds an observation into the cache, creating the entry on
// first sight. Merging the same observation twice is a no-op.
func mergePlayer(uid uint64, up playerUpdate) {
	if uid == 0 {
		return
	}
	playersMu.Lock()
	defer playersMu.Unlock()
	p, ok := players[uid]
	if !ok {
		p = &playerInfo{UID: uid}
		players[uid] = p
	}
	if p.Name == "" && validEntityName(up.name) {
		p.Name = up.name
	}
	if p.ClassID <= 0 && up.classID > 0 {
		p.ClassID = up.classID
	}
	if p.SpecID <= 0 && up.specID > 0 {
		p.SpecID = up.specID
	}
	if p.AbilityScore <= 0 && up.abilityScore > 0 {
		p.AbilityScore = up.abilityScore
	}
	if p.SpecName == "" && up.specName != "" {
		p.SpecName = up.specName
	}
}

// lookupPlayer returns a copy of the cached entry, if any.
func lookupPlayer(uid uint64) (playerInfo, bool) {
	playersMu.RLock()
	defer playersMu.RUnlock()
	p, ok := players[uid]
	if !ok {
		return playerInfo{}, false
	}
	return *p, true
}

func playerCount() int {
	playersMu.RLock()
	defer playersMu.RUnlock()
	return len(players)
}

// resetPlayers drops the cache. Used by tests.
func resetPlayers() {
	playersMu.Lock()
	players = make(map[uint64]*playerInfo)
	playersMu.Unlock()
}
