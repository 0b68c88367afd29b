package main

import (
	"strings"
	"unicode"
	"unicode/utf8"

	textunicode "golang.org/x/text/encoding/unicode"

	"google.golang.org/protobuf/encoding/protowire"
)

// Damage kinds carried on the wire.
const (
	dmgNormal   = 0
	dmgMiss     = 1
	dmgHeal     = 2
	dmgImmune   = 3
	dmgFall     = 4
	dmgAbsorbed = 5
)

// Attribute ids understood by the attribute dictionary.
const (
	attrIDName       = 0x01
	attrIDEntityID   = 0x0a
	attrIDProfession = 0xdc
	attrIDFightPoint = 0x272e
	attrIDCurHP      = 0x2c2e
	attrIDMaxHP      = 0x2c38
)

// damageInfo is one damage/heal record. Every field is optional on the wire;
// nil means the server did not send it.
type damageInfo struct {
	damageSource  *uint64
	isMiss        *bool
	isCrit        *bool
	typ           *uint64
	typeFlag      *uint64
	value         *uint64
	actualValue   *uint64
	luckyValue    *uint64
	hpLessen      *uint64
	shieldLessen  *uint64
	attackerUUID  *uint64
	ownerID       *uint64 // skill id
	ownerLevel    *uint64
	ownerStage    *uint64
	hitEventID    *uint64
	isNormal      *bool
	isDead        *bool
	property      *uint64
	topSummonerID *uint64
	isRainbow     *bool
	damageMode    *uint64
}

// attackerRaw resolves the raw id damage should be attributed to. A non-zero
// top summoner wins so pet and turret damage lands on the owning player.
func (d *damageInfo) attackerRaw() (uint64, bool) {
	if d.topSummonerID != nil && *d.topSummonerID != 0 {
		return *d.topSummonerID, true
	}
	if d.attackerUUID != nil && *d.attackerUUID != 0 {
		return *d.attackerUUID, true
	}
	return 0, false
}

func (d *damageInfo) damageType() uint64 {
	if d.typ == nil {
		return dmgNormal
	}
	return *d.typ
}

func (d *damageInfo) amount() uint64 {
	if d.value == nil {
		return 0
	}
	return *d.value
}

func (d *damageInfo) skillID() uint64 {
	if d.ownerID == nil {
		return 0
	}
	return *d.ownerID
}

// crit reports whether the record is a critical hit: either the explicit flag
// or bit 0 of the type flag.
func (d *damageInfo) crit() bool {
	if d.isCrit != nil && *d.isCrit {
		return true
	}
	return d.typeFlag != nil && *d.typeFlag&0x01 != 0
}

func (d *damageInfo) miss() bool {
	if d.isMiss != nil && *d.isMiss {
		return true
	}
	return d.damageType() == dmgMiss
}

func (d *damageInfo) dead() bool {
	return d.isDead != nil && *d.isDead
}

type attrEntry struct {
	id  uint64
	raw []byte
}

type attrCollection struct {
	uuid  uint64
	attrs []attrEntry
}

type skillEffect struct {
	uuid    uint64
	damages []*damageInfo
	total   uint64
}

// aoiSyncDelta is one entity's incremental update: its raw id, optional
// attribute changes and optional skill-effect (damage) batch.
type aoiSyncDelta struct {
	uuid    uint64
	hasUUID bool
	attrs   *attrCollection
	effect  *skillEffect
}

type syncEntity struct {
	uuid       uint64
	hasUUID    bool
	entityType uint64
	attrs      *attrCollection
}

type charBaseInfo struct {
	charID     uint64
	name       string
	fightPoint uint64
}

type charSerialize struct {
	base       *charBaseInfo
	profession uint64
}

func u64ptr(v uint64) *uint64 { return &v }
func boolptr(v bool) *bool    { return &v }

// parseDamageInfo decodes a single damage record. Unknown fields, wrong wire
// types and truncated values are skipped; whatever decoded before the damage
// is kept.
func parseDamageInfo(b []byte) *damageInfo {
	d := &damageInfo{}
	w := newWireReader(b)
	for {
		num, typ := w.readTag()
		if num == 0 {
			break
		}
		if typ != protowire.VarintType {
			w.safeSkipLastField()
			continue
		}
		v, ok := w.readVarint()
		if !ok {
			break
		}
		switch num {
		case 1:
			d.damageSource = u64ptr(v)
		case 2:
			d.isMiss = boolptr(v != 0)
		case 3:
			d.isCrit = boolptr(v != 0)
		case 4:
			d.typ = u64ptr(v)
		case 5:
			d.typeFlag = u64ptr(v)
		case 6:
			d.value = u64ptr(v)
		case 7:
			d.actualValue = u64ptr(v)
		case 8:
			d.luckyValue = u64ptr(v)
		case 9:
			d.hpLessen = u64ptr(v)
		case 10:
			d.shieldLessen = u64ptr(v)
		case 11:
			d.attackerUUID = u64ptr(v)
		case 12:
			d.ownerID = u64ptr(v)
		case 13:
			d.ownerLevel = u64ptr(v)
		case 14:
			d.ownerStage = u64ptr(v)
		case 15:
			d.hitEventID = u64ptr(v)
		case 16:
			d.isNormal = boolptr(v != 0)
		case 17:
			d.isDead = boolptr(v != 0)
		case 18:
			d.property = u64ptr(v)
		case 21:
			d.topSummonerID = u64ptr(v)
		case 24:
			d.isRainbow = boolptr(v != 0)
		case 25:
			d.damageMode = u64ptr(v)
		}
	}
	return d
}

func parseSkillEffect(b []byte) *skillEffect {
	e := &skillEffect{}
	w := newWireReader(b)
	for {
		num, typ := w.readTag()
		if num == 0 {
			break
		}
		switch {
		case num == 1 && typ == protowire.VarintType:
			if v, ok := w.readVarint(); ok {
				e.uuid = v
			}
		case num == 2 && typ == protowire.BytesType:
			sub, ok := w.readBytes()
			if !ok {
				break
			}
			e.damages = append(e.damages, parseDamageInfo(sub))
		case num == 3 && typ == protowire.VarintType:
			if v, ok := w.readVarint(); ok {
				e.total = v
			}
		default:
			w.safeSkipLastField()
		}
	}
	return e
}

func parseAttrCollection(b []byte) *attrCollection {
	c := &attrCollection{}
	w := newWireReader(b)
	for {
		num, typ := w.readTag()
		if num == 0 {
			break
		}
		switch {
		case num == 1 && typ == protowire.VarintType:
			if v, ok := w.readVarint(); ok {
				c.uuid = v
			}
		case num == 2 && typ == protowire.BytesType:
			sub, ok := w.readBytes()
			if !ok {
				break
			}
			aw := newWireReader(sub)
			var a attrEntry
			for {
				anum, atyp := aw.readTag()
				if anum == 0 {
					break
				}
				switch {
				case anum == 1 && atyp == protowire.VarintType:
					if v, ok := aw.readVarint(); ok {
						a.id = v
					}
				case anum == 2 && atyp == protowire.BytesType:
					if raw, ok := aw.readBytes(); ok {
						a.raw = raw
					}
				default:
					aw.safeSkipLastField()
				}
			}
			c.attrs = append(c.attrs, a)
		default:
			w.safeSkipLastField()
		}
	}
	return c
}

func parseAoiSyncDelta(b []byte) *aoiSyncDelta {
	d := &aoiSyncDelta{}
	w := newWireReader(b)
	for {
		num, typ := w.readTag()
		if num == 0 {
			break
		}
		switch {
		case num == 1 && typ == protowire.VarintType:
			if v, ok := w.readVarint(); ok {
				d.uuid = v
				d.hasUUID = true
			}
		case num == 6 && typ == protowire.BytesType:
			if sub, ok := w.readBytes(); ok {
				d.attrs = parseAttrCollection(sub)
			}
		case num == 7 && typ == protowire.BytesType:
			if sub, ok := w.readBytes(); ok {
				d.effect = parseSkillEffect(sub)
			}
		default:
			w.safeSkipLastField()
		}
	}
	return d
}

// parseNearDeltaInfo decodes the repeated delta list sent for nearby
// entities.
func parseNearDeltaInfo(b []byte) []*aoiSyncDelta {
	var deltas []*aoiSyncDelta
	w := newWireReader(b)
	for {
		num, typ := w.readTag()
		if num == 0 {
			break
		}
		if num == 1 && typ == protowire.BytesType {
			if sub, ok := w.readBytes(); ok {
				deltas = append(deltas, parseAoiSyncDelta(sub))
				continue
			}
			break
		}
		w.safeSkipLastField()
	}
	return deltas
}

// parseToMeDeltaInfo decodes the self-directed delta wrapper and returns the
// inner delta plus the self raw id when present.
func parseToMeDeltaInfo(b []byte) (selfRaw uint64, delta *aoiSyncDelta) {
	w := newWireReader(b)
	for {
		num, typ := w.readTag()
		if num == 0 {
			break
		}
		if num == 1 && typ == protowire.BytesType {
			sub, ok := w.readBytes()
			if !ok {
				break
			}
			iw := newWireReader(sub)
			for {
				inum, ityp := iw.readTag()
				if inum == 0 {
					break
				}
				switch {
				case inum == 1 && ityp == protowire.VarintType:
					if v, ok := iw.readVarint(); ok {
						selfRaw = v
					}
				case inum == 2 && ityp == protowire.BytesType:
					if dsub, ok := iw.readBytes(); ok {
						delta = parseAoiSyncDelta(dsub)
					}
				default:
					iw.safeSkipLastField()
				}
			}
			continue
		}
		w.safeSkipLastField()
	}
	return selfRaw, delta
}

func parseSyncEntity(b []byte) *syncEntity {
	e := &syncEntity{}
	w := newWireReader(b)
	for {
		num, typ := w.readTag()
		if num == 0 {
			break
		}
		switch {
		case num == 1 && typ == protowire.VarintType:
			if v, ok := w.readVarint(); ok {
				e.uuid = v
				e.hasUUID = true
			}
		case num == 2 && typ == protowire.VarintType:
			if v, ok := w.readVarint(); ok {
				e.entityType = v
			}
		case num == 3 && typ == protowire.BytesType:
			if sub, ok := w.readBytes(); ok {
				e.attrs = parseAttrCollection(sub)
			}
		default:
			w.safeSkipLastField()
		}
	}
	return e
}

// parseNearEntities decodes the appear list. Some server builds nest the
// entity array one level deeper or move it to another field number, so
// unknown length-delimited fields are speculatively parsed as an entity and,
// failing that, as a nested entity list. Speculation is silent on failure.
func parseNearEntities(b []byte, depth int) []*syncEntity {
	if depth > 4 {
		return nil
	}
	var ents []*syncEntity
	w := newWireReader(b)
	for {
		num, typ := w.readTag()
		if num == 0 {
			break
		}
		if typ != protowire.BytesType {
			w.safeSkipLastField()
			continue
		}
		sub, ok := w.readBytes()
		if !ok {
			break
		}
		if num == 1 {
			ents = append(ents, parseSyncEntity(sub))
			continue
		}
		if e := parseSyncEntity(sub); e.hasUUID || e.attrs != nil {
			ents = append(ents, e)
			continue
		}
		ents = append(ents, parseNearEntities(sub, depth+1)...)
	}
	return ents
}

// parseContainerData decodes the self character container snapshot.
func parseContainerData(b []byte) *charSerialize {
	var cs *charSerialize
	w := newWireReader(b)
	for {
		num, typ := w.readTag()
		if num == 0 {
			break
		}
		if num == 1 && typ == protowire.BytesType {
			sub, ok := w.readBytes()
			if !ok {
				break
			}
			cs = parseCharSerialize(sub)
			continue
		}
		w.safeSkipLastField()
	}
	return cs
}

func parseCharSerialize(b []byte) *charSerialize {
	cs := &charSerialize{}
	w := newWireReader(b)
	for {
		num, typ := w.readTag()
		if num == 0 {
			break
		}
		switch {
		case num == 2 && typ == protowire.BytesType:
			if sub, ok := w.readBytes(); ok {
				cs.base = parseCharBaseInfo(sub)
			}
		case num == 61 && typ == protowire.BytesType:
			if sub, ok := w.readBytes(); ok {
				cs.profession = parseProfessionList(sub)
			}
		default:
			w.safeSkipLastField()
		}
	}
	return cs
}

func parseCharBaseInfo(b []byte) *charBaseInfo {
	ci := &charBaseInfo{}
	w := newWireReader(b)
	for {
		num, typ := w.readTag()
		if num == 0 {
			break
		}
		switch {
		case num == 1 && typ == protowire.VarintType:
			if v, ok := w.readVarint(); ok {
				ci.charID = v
			}
		case num == 5 && typ == protowire.BytesType:
			if sub, ok := w.readBytes(); ok {
				if s := strings.TrimSpace(string(sub)); validEntityName(s) {
					ci.name = s
				}
			}
		case num == 35 && typ == protowire.VarintType:
			if v, ok := w.readVarint(); ok {
				ci.fightPoint = v
			}
		default:
			w.safeSkipLastField()
		}
	}
	return ci
}

func parseProfessionList(b []byte) uint64 {
	var id uint64
	w := newWireReader(b)
	for {
		num, typ := w.readTag()
		if num == 0 {
			break
		}
		if (num == 1 || num == 2) && typ == protowire.VarintType {
			if v, ok := w.readVarint(); ok && id == 0 {
				id = v
			}
			continue
		}
		w.safeSkipLastField()
	}
	return id
}

// entityAttrs is the interpreted view of an attribute collection.
type entityAttrs struct {
	name       string
	profession uint64
	fightPoint uint64
	curHP      uint64
	hasCurHP   bool
	maxHP      uint64
	entityID   uint64
}

// interpretAttrs runs the attribute dictionary over a collection.
func interpretAttrs(c *attrCollection) entityAttrs {
	var out entityAttrs
	if c == nil {
		return out
	}
	for _, a := range c.attrs {
		switch a.id {
		case attrIDName:
			if n := salvageName(a.raw, 0); n != "" {
				out.name = n
			}
		case attrIDProfession:
			if v, n := protowire.ConsumeVarint(a.raw); n > 0 {
				out.profession = v
			}
		case attrIDFightPoint:
			if v, n := protowire.ConsumeVarint(a.raw); n > 0 {
				out.fightPoint = v
			}
		case attrIDCurHP:
			if len(a.raw) == 0 {
				out.curHP = 0
				out.hasCurHP = true
			} else if v, n := protowire.ConsumeVarint(a.raw); n > 0 {
				out.curHP = v
				out.hasCurHP = true
			}
		case attrIDMaxHP:
			if v, n := protowire.ConsumeVarint(a.raw); n > 0 {
				out.maxHP = v
			}
		case attrIDEntityID:
			if v, n := protowire.ConsumeVarint(a.raw); n > 0 {
				out.entityID = v
			}
		}
	}
	return out
}

var utf16LEDecoder = textunicode.UTF16(textunicode.LittleEndian, textunicode.IgnoreBOM)
var utf16BEDecoder = textunicode.UTF16(textunicode.BigEndian, textunicode.IgnoreBOM)

// salvageName recovers a display name from a raw name attribute. The usual
// form is a one-byte length prefix followed by UTF-8, but live servers have
// shipped names at shifted offsets, in UTF-16 and wrapped in a nested blob.
// Candidates are tried in priority order and the first one passing the
// validity filter wins.
func salvageName(raw []byte, depth int) string {
	if len(raw) == 0 || depth > 3 {
		return ""
	}
	if len(raw) > 1 {
		if s := cleanName(string(raw[1:])); validEntityName(s) {
			return s
		}
	}
	for off := 0; off <= 4 && off < len(raw); off++ {
		if s := cleanName(string(raw[off:])); validEntityName(s) {
			return s
		}
	}
	for off := 0; off <= 4 && off < len(raw); off++ {
		if b, err := utf16LEDecoder.NewDecoder().Bytes(raw[off:]); err == nil {
			if s := cleanName(string(b)); validEntityName(s) {
				return s
			}
		}
		if b, err := utf16BEDecoder.NewDecoder().Bytes(raw[off:]); err == nil {
			if s := cleanName(string(b)); validEntityName(s) {
				return s
			}
		}
	}
	// Last resort: the attribute may wrap the name in another message.
	w := newWireReader(raw)
	for {
		num, typ := w.readTag()
		if num == 0 {
			break
		}
		if typ == protowire.BytesType {
			if sub, ok := w.readBytes(); ok {
				if s := salvageName(sub, depth+1); s != "" {
					return s
				}
				continue
			}
			break
		}
		w.safeSkipLastField()
	}
	return ""
}

func cleanName(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return r < 0x20 || r == utf8.RuneError || unicode.IsSpace(r)
	})
}

// validEntityName filters out garbage produced by decoding the wrong bytes:
// the name must be mostly printable word characters, contain a letter, fit in
// 64 runes and not be an "Unknown" placeholder.
func validEntityName(s string) bool {
	if s == "" {
		return false
	}
	runes := []rune(s)
	if len(runes) > 64 {
		return false
	}
	if strings.Contains(strings.ToLower(s), "unknown") {
		return false
	}
	letters := 0
	plausible := 0
	for _, r := range runes {
		if r < 0x20 || r == utf8.RuneError {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			plausible++
		case r == '-' || r == '_' || r == '.' || r == '\'':
			plausible++
		}
	}
	if letters == 0 {
		return false
	}
	return plausible*2 >= len(runes)
}
