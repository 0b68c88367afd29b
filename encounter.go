package main

import (
	"sort"
	"sync"
	"time"
)

// Entity classification from the low 16 bits of a raw id.
const (
	rawKindMonster   = 64
	rawKindCharacter = 640
)

type entityKind int

const (
	entityError entityKind = iota
	entityMonster
	entityCharacter
)

func classifyRaw(raw uint64) entityKind {
	switch raw & 0xFFFF {
	case rawKindMonster:
		return entityMonster
	case rawKindCharacter:
		return entityCharacter
	}
	return entityError
}

// shiftUID strips the kind bits; everything above the parser works with the
// shifted id.
func shiftUID(raw uint64) uint64 {
	return raw >> 16
}

// entityInfo is what an encounter knows about one entity. Fields are set on
// observation and never cleared.
type entityInfo struct {
	kind         entityKind
	name         string
	classID      int32
	specName     string
	abilityScore int64
	curHP        uint64
	maxHP        uint64
	dead         bool
}

type damageEvent struct {
	attackerUID uint64
	targetUID   uint64
	amount      uint64
	typ         uint64
	isCrit      bool
	isMiss      bool
	when        time.Time
}

type attackerStats struct {
	uid          uint64
	name         string
	classID      int32
	specName     string
	abilityScore int64

	totalDamage uint64
	damageCount uint64
	critCount   uint64
	healingDone uint64

	skillIDs       map[uint64]struct{}
	damageBySkill  map[uint64]uint64
	healingBySkill map[uint64]uint64
}

type encounter struct {
	startTime    time.Time
	lastActivity time.Time
	active       bool
	attackers    map[uint64]*attackerStats
	events       []damageEvent
	entities     map[uint64]*entityInfo
}

// attackerView / encounterView are the immutable snapshots handed to
// subscribers.
type attackerView struct {
	UID          uint64
	Name         string
	ClassID      int32
	ClassName    string
	SpecName     string
	AbilityScore int64
	TotalDamage  uint64
	DamageCount  uint64
	CritCount    uint64
	HealingDone  uint64
	DPS          float64
}

type encounterView struct {
	StartTime    time.Time
	LastActivity time.Time
	Active       bool
	Duration     time.Duration
	EventCount   int
	Attackers    []attackerView
}

// encounterEngine consumes decoded damage records and maintains the current
// encounter, the idle-timeout state machine and the bounded history. One
// coarse mutex serializes everything, including the timer callback.
type encounterEngine struct {
	mu  sync.Mutex
	bus *eventBus
	now func() time.Time

	idleTimeout time.Duration // 0 means never auto-end
	maxHistory  int

	cur      *encounter
	selected *encounter
	history  []*encounter

	idleTimer *time.Timer

	serverTimeMsgs uint64
}

func newEncounterEngine(bus *eventBus) *encounterEngine {
	return &encounterEngine{
		bus:         bus,
		now:         time.Now,
		idleTimeout: time.Duration(defaultResetTimerSeconds) * time.Second,
		maxHistory:  defaultMaxHistory,
	}
}

// handleOpcode routes one decoded application message into the engine.
func (e *encounterEngine) handleOpcode(msg opcodeMsg) {
	switch msg.op {
	case opServerChange:
		logDebug("server change signalled")
		e.bus.publish(meterEvent{kind: evServerChange})
	case opSyncNearDeltaInfo:
		for _, d := range parseNearDeltaInfo(msg.payload) {
			e.applyDelta(d)
		}
	case opSyncToMeDeltaInfo:
		selfRaw, d := parseToMeDeltaInfo(msg.payload)
		if selfRaw != 0 {
			logDebug("self uid %d", shiftUID(selfRaw))
		}
		e.applyDelta(d)
	case opSyncNearEntities:
		for _, ent := range parseNearEntities(msg.payload, 0) {
			e.applyEntity(ent)
		}
	case opSyncContainerData:
		e.applyContainer(parseContainerData(msg.payload))
	case opSyncServerTime:
		e.mu.Lock()
		e.serverTimeMsgs++
		e.mu.Unlock()
	}
}

// applyDelta folds one entity delta in: attribute changes first, then each
// damage record from its skill effect.
func (e *encounterEngine) applyDelta(d *aoiSyncDelta) {
	if d == nil || !d.hasUUID || d.uuid == 0 {
		return
	}
	if d.attrs != nil {
		e.applyAttrs(d.uuid, interpretAttrs(d.attrs))
	}
	if d.effect == nil {
		return
	}
	for _, di := range d.effect.damages {
		e.processDamage(d.uuid, di)
	}
}

func (e *encounterEngine) applyEntity(ent *syncEntity) {
	if ent == nil || !ent.hasUUID || ent.uuid == 0 {
		return
	}
	if ent.attrs != nil {
		e.applyAttrs(ent.uuid, interpretAttrs(ent.attrs))
	}
}

// applyAttrs pushes interpreted attributes into the player cache and the
// current encounter's entity table.
func (e *encounterEngine) applyAttrs(raw uint64, ea entityAttrs) {
	kind := classifyRaw(raw)
	uid := shiftUID(raw)
	if kind == entityCharacter {
		mergePlayer(uid, playerUpdate{
			name:         ea.name,
			classID:      int32(ea.profession),
			abilityScore: int64(ea.fightPoint),
		})
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return
	}
	ent := e.entityLocked(raw)
	if ea.name != "" && ent.name == "" {
		ent.name = ea.name
	}
	if ea.profession > 0 && ent.classID == 0 {
		ent.classID = int32(ea.profession)
	}
	if ea.fightPoint > 0 && ent.abilityScore == 0 {
		ent.abilityScore = int64(ea.fightPoint)
	}
	if ea.hasCurHP {
		ent.curHP = ea.curHP
	}
	if ea.maxHP > 0 {
		ent.maxHP = ea.maxHP
	}
}

// applyContainer merges the self character snapshot into the player cache.
func (e *encounterEngine) applyContainer(cs *charSerialize) {
	if cs == nil || cs.base == nil || cs.base.charID == 0 {
		return
	}
	mergePlayer(cs.base.charID, playerUpdate{
		name:         cs.base.name,
		specID:       int32(cs.profession),
		abilityScore: int64(cs.base.fightPoint),
	})
}

// entityLocked returns the current encounter's record for raw, creating it on
// first observation.
func (e *encounterEngine) entityLocked(raw uint64) *entityInfo {
	uid := shiftUID(raw)
	ent, ok := e.cur.entities[uid]
	if !ok {
		ent = &entityInfo{kind: classifyRaw(raw)}
		e.cur.entities[uid] = ent
	}
	return ent
}

// processDamage is the heart of the engine: classify, attribute, aggregate,
// and keep the idle-timeout state machine fed.
func (e *encounterEngine) processDamage(targetRaw uint64, di *damageInfo) {
	attackerRaw, ok := di.attackerRaw()
	if !ok {
		return
	}
	attackerUID := shiftUID(attackerRaw)
	targetUID := shiftUID(targetRaw)
	attackerKind := classifyRaw(attackerRaw)
	typ := di.damageType()
	extending := typ == dmgNormal || typ == dmgHeal

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if e.cur == nil || !e.cur.active {
		if !extending {
			return
		}
		e.cur = &encounter{
			startTime:    now,
			lastActivity: now,
			active:       true,
			attackers:    make(map[uint64]*attackerStats),
			entities:     make(map[uint64]*entityInfo),
		}
		e.selected = e.cur
		e.bus.publish(meterEvent{kind: evEncounterStarted, encounter: e.snapshotLocked(e.cur)})
		e.bus.publish(meterEvent{kind: evSelectedEncounterChanged, encounter: e.snapshotLocked(e.cur)})
	}
	if extending {
		e.cur.lastActivity = now
		e.rescheduleIdleLocked(e.idleTimeout)
	}

	skill := di.skillID()
	if attackerKind == entityCharacter {
		st, ok := e.cur.attackers[attackerUID]
		if !ok {
			st = &attackerStats{
				uid:            attackerUID,
				skillIDs:       make(map[uint64]struct{}),
				damageBySkill:  make(map[uint64]uint64),
				healingBySkill: make(map[uint64]uint64),
			}
			if p, known := lookupPlayer(attackerUID); known {
				st.name = p.Name
				st.classID = p.ClassID
				st.specName = p.SpecName
				st.abilityScore = p.AbilityScore
			}
			e.cur.attackers[attackerUID] = st
		}
		if _, seen := st.skillIDs[skill]; !seen {
			st.skillIDs[skill] = struct{}{}
			if spec, classID, found := detectSpec(skill); found && st.specName == "" {
				st.specName = spec
				st.classID = classID
				mergePlayer(attackerUID, playerUpdate{classID: classID, specName: spec})
				ent := e.entityLocked(attackerRaw)
				if ent.specName == "" {
					ent.specName = spec
				}
				if ent.classID == 0 {
					ent.classID = classID
				}
			}
		}
		amount := di.amount()
		switch {
		case typ == dmgHeal:
			st.healingDone += amount
			st.healingBySkill[skill] += amount
		case typ != dmgMiss:
			st.totalDamage += amount
			st.damageCount++
			if di.crit() {
				st.critCount++
			}
			st.damageBySkill[skill] += amount
		}
		ent := e.entityLocked(attackerRaw)
		if ent.name == "" && st.name != "" {
			ent.name = st.name
		}
	}

	tgt := e.entityLocked(targetRaw)
	if di.dead() {
		tgt.dead = true
	}

	e.cur.events = append(e.cur.events, damageEvent{
		attackerUID: attackerUID,
		targetUID:   targetUID,
		amount:      di.amount(),
		typ:         typ,
		isCrit:      di.crit(),
		isMiss:      di.miss(),
		when:        now,
	})
	e.bus.publish(meterEvent{kind: evEncounterUpdated, encounter: e.snapshotLocked(e.cur)})
}

// rescheduleIdleLocked arms (or re-arms) the one-shot idle timer. A timeout
// of zero disarms it: such encounters only end on an explicit setting change.
func (e *encounterEngine) rescheduleIdleLocked(d time.Duration) {
	if d <= 0 {
		if e.idleTimer != nil {
			e.idleTimer.Stop()
		}
		return
	}
	if e.idleTimer == nil {
		e.idleTimer = time.AfterFunc(d, e.onIdleTimer)
		return
	}
	e.idleTimer.Stop()
	e.idleTimer.Reset(d)
}

// onIdleTimer fires on the timer goroutine; it takes the same engine lock as
// event processing.
func (e *encounterEngine) onIdleTimer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil || !e.cur.active || e.idleTimeout <= 0 {
		return
	}
	idle := e.now().Sub(e.cur.lastActivity)
	if idle < e.idleTimeout {
		e.rescheduleIdleLocked(e.idleTimeout - idle)
		return
	}
	e.finalizeLocked()
}

// finalizeLocked ends the current encounter: pin last activity to the final
// stored event, push into history, and announce. The finished encounter
// remains the current reference so consumers keep showing the last result
// until combat resumes.
func (e *encounterEngine) finalizeLocked() {
	enc := e.cur
	enc.active = false
	if n := len(enc.events); n > 0 {
		last := enc.events[0].when
		for _, ev := range enc.events[1:] {
			if ev.when.After(last) {
				last = ev.when
			}
		}
		enc.lastActivity = last
	} else {
		enc.lastActivity = enc.startTime
	}
	if e.maxHistory > 0 {
		e.history = append([]*encounter{enc}, e.history...)
		if len(e.history) > e.maxHistory {
			e.history = e.history[:e.maxHistory]
		}
	}
	e.bus.publish(meterEvent{kind: evEncounterEnded, encounter: e.snapshotLocked(enc)})
	e.bus.publish(meterEvent{kind: evHistoryChanged})
}

// setIdleTimeout applies a changed reset timer to the running encounter.
func (e *encounterEngine) setIdleTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.idleTimeout = d
	if e.cur == nil || !e.cur.active {
		return
	}
	if d <= 0 {
		e.rescheduleIdleLocked(0)
		return
	}
	remaining := d - e.now().Sub(e.cur.lastActivity)
	if remaining <= 0 {
		e.finalizeLocked()
		return
	}
	e.rescheduleIdleLocked(remaining)
}

// setMaxHistory clamps and applies the history bound, trimming the oldest
// completed encounters when it shrinks.
func (e *encounterEngine) setMaxHistory(n int) {
	if n < 0 {
		n = 0
	}
	if n > 60 {
		n = 60
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxHistory = n
	if len(e.history) > n {
		e.history = e.history[:n]
		e.bus.publish(meterEvent{kind: evHistoryChanged})
	}
}

// selectHistory switches the selected encounter to history index i (0 is the
// most recent) and announces the change. Out-of-range indexes are ignored.
func (e *encounterEngine) selectHistory(i int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.history) {
		return
	}
	e.selected = e.history[i]
	e.bus.publish(meterEvent{kind: evSelectedEncounterChanged, encounter: e.snapshotLocked(e.selected)})
}

func (e *encounterEngine) durationLocked(enc *encounter) time.Duration {
	end := enc.lastActivity
	if enc.active {
		end = e.now()
	}
	d := end.Sub(enc.startTime)
	if d < 0 {
		return 0
	}
	return d
}

// snapshotLocked builds the immutable view handed to subscribers, ranked by
// total damage.
func (e *encounterEngine) snapshotLocked(enc *encounter) *encounterView {
	dur := e.durationLocked(enc)
	secs := dur.Seconds()
	view := &encounterView{
		StartTime:    enc.startTime,
		LastActivity: enc.lastActivity,
		Active:       enc.active,
		Duration:     dur,
		EventCount:   len(enc.events),
	}
	for _, st := range enc.attackers {
		av := attackerView{
			UID:          st.uid,
			Name:         st.name,
			ClassID:      st.classID,
			ClassName:    classNameFor(st.classID),
			SpecName:     st.specName,
			AbilityScore: st.abilityScore,
			TotalDamage:  st.totalDamage,
			DamageCount:  st.damageCount,
			CritCount:    st.critCount,
			HealingDone:  st.healingDone,
		}
		if secs > 0 {
			av.DPS = float64(st.totalDamage) / secs
		}
		view.Attackers = append(view.Attackers, av)
	}
	sort.Slice(view.Attackers, func(i, j int) bool {
		if view.Attackers[i].TotalDamage != view.Attackers[j].TotalDamage {
			return view.Attackers[i].TotalDamage > view.Attackers[j].TotalDamage
		}
		return view.Attackers[i].UID < view.Attackers[j].UID
	})
	return view
}

// currentView returns a snapshot of the current encounter, or nil when none
// has been observed yet.
func (e *encounterEngine) currentView() *encounterView {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return nil
	}
	return e.snapshotLocked(e.cur)
}

func (e *encounterEngine) historyLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}

// stop disarms the idle timer. Called on shutdown.
func (e *encounterEngine) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.idleTimer != nil {
		e.idleTimer.Stop()
	}
}
