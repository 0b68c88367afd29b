package main

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func buildDamage(t *testing.T, fields map[protowire.Number]uint64) []byte {
	t.Helper()
	var b []byte
	// Deterministic order keeps failures readable.
	for num := protowire.Number(1); num <= 25; num++ {
		if v, ok := fields[num]; ok {
			b = appendVarintField(b, num, v)
		}
	}
	return b
}

func TestParseDamageInfoRoundTrip(t *testing.T) {
	b := buildDamage(t, map[protowire.Number]uint64{
		3:  1,    // crit
		4:  0,    // normal
		6:  1000, // value
		11: 0x04b00280,
		12: 1714,
		17: 1,
		21: 0,
	})
	d := parseDamageInfo(b)
	if d.isCrit == nil || !*d.isCrit {
		t.Fatalf("crit not decoded")
	}
	if d.value == nil || *d.value != 1000 {
		t.Fatalf("value = %v", d.value)
	}
	if d.attackerUUID == nil || *d.attackerUUID != 0x04b00280 {
		t.Fatalf("attacker = %v", d.attackerUUID)
	}
	if d.ownerID == nil || *d.ownerID != 1714 {
		t.Fatalf("skill = %v", d.ownerID)
	}
	if !d.dead() {
		t.Fatalf("isDead not decoded")
	}
	if d.damageSource != nil || d.isMiss != nil {
		t.Fatalf("absent fields decoded as present")
	}
	if raw, ok := d.attackerRaw(); !ok || raw != 0x04b00280 {
		t.Fatalf("attackerRaw = %#x ok=%v (zero top summoner must fall back)", raw, ok)
	}
}

func TestParseDamageInfoSkipsWrongWireType(t *testing.T) {
	var b []byte
	b = appendBytesField(b, 6, []byte("not a varint")) // value with bytes type
	b = appendVarintField(b, 12, 2405)
	d := parseDamageInfo(b)
	if d.value != nil {
		t.Fatalf("wrong-typed field decoded: %v", *d.value)
	}
	if d.ownerID == nil || *d.ownerID != 2405 {
		t.Fatalf("field after skip lost: %v", d.ownerID)
	}
}

func TestParseDamageInfoTruncated(t *testing.T) {
	b := appendVarintField(nil, 6, 500)
	b = append(b, protowire.AppendTag(nil, 11, protowire.VarintType)...)
	b = append(b, 0xff) // unterminated varint
	d := parseDamageInfo(b)
	if d.value == nil || *d.value != 500 {
		t.Fatalf("prefix fields lost on truncation")
	}
	if d.attackerUUID != nil {
		t.Fatalf("truncated field decoded")
	}
}

func TestDamageHelpers(t *testing.T) {
	d := parseDamageInfo(buildDamage(t, map[protowire.Number]uint64{5: 0x01}))
	if !d.crit() {
		t.Fatalf("type flag bit 0 must imply crit")
	}
	d = parseDamageInfo(buildDamage(t, map[protowire.Number]uint64{4: dmgMiss}))
	if !d.miss() {
		t.Fatalf("type Miss must imply miss")
	}
	d = parseDamageInfo(buildDamage(t, map[protowire.Number]uint64{11: 5, 21: 9}))
	if raw, ok := d.attackerRaw(); !ok || raw != 9 {
		t.Fatalf("top summoner must win attribution, got %d", raw)
	}
}

func buildSkillEffect(damages ...[]byte) []byte {
	var b []byte
	b = appendVarintField(b, 1, 77)
	for _, d := range damages {
		b = appendBytesField(b, 2, d)
	}
	return appendVarintField(b, 3, 12345)
}

func buildDelta(t *testing.T, raw uint64, attrs, effect []byte) []byte {
	t.Helper()
	b := appendVarintField(nil, 1, raw)
	if attrs != nil {
		b = appendBytesField(b, 6, attrs)
	}
	if effect != nil {
		b = appendBytesField(b, 7, effect)
	}
	return b
}

func TestParseNearDeltaInfo(t *testing.T) {
	dmg := buildDamage(t, map[protowire.Number]uint64{6: 10, 11: 0x10280})
	delta := buildDelta(t, 0x10280, nil, buildSkillEffect(dmg, dmg))
	payload := appendBytesField(nil, 1, delta)
	payload = appendBytesField(payload, 1, delta)

	deltas := parseNearDeltaInfo(payload)
	if len(deltas) != 2 {
		t.Fatalf("deltas = %d, want 2", len(deltas))
	}
	d := deltas[0]
	if !d.hasUUID || d.uuid != 0x10280 {
		t.Fatalf("uuid = %#x", d.uuid)
	}
	if d.effect == nil || len(d.effect.damages) != 2 {
		t.Fatalf("damages missing")
	}
	if d.effect.total != 12345 || d.effect.uuid != 77 {
		t.Fatalf("effect envelope = %d/%d", d.effect.uuid, d.effect.total)
	}
}

func TestParseToMeDeltaInfo(t *testing.T) {
	inner := buildDelta(t, 0x20280, nil, buildSkillEffect(buildDamage(t, map[protowire.Number]uint64{6: 7, 11: 0x20280})))
	container := appendVarintField(nil, 1, 0x20280)
	container = appendBytesField(container, 2, inner)
	payload := appendBytesField(nil, 1, container)

	selfRaw, delta := parseToMeDeltaInfo(payload)
	if selfRaw != 0x20280 {
		t.Fatalf("selfRaw = %#x", selfRaw)
	}
	if delta == nil || !delta.hasUUID || delta.uuid != 0x20280 {
		t.Fatalf("base delta missing")
	}
}

func buildAttr(id uint64, raw []byte) []byte {
	b := appendVarintField(nil, 1, id)
	return appendBytesField(b, 2, raw)
}

func buildAttrCollection(uuid uint64, attrs ...[]byte) []byte {
	b := appendVarintField(nil, 1, uuid)
	for _, a := range attrs {
		b = appendBytesField(b, 2, a)
	}
	return b
}

func TestInterpretAttrs(t *testing.T) {
	name := append([]byte{byte(len("Keeva"))}, []byte("Keeva")...)
	col := parseAttrCollection(buildAttrCollection(9,
		buildAttr(attrIDName, name),
		buildAttr(attrIDProfession, protowire.AppendVarint(nil, 12)),
		buildAttr(attrIDFightPoint, protowire.AppendVarint(nil, 4321)),
		buildAttr(attrIDCurHP, protowire.AppendVarint(nil, 555)),
		buildAttr(attrIDMaxHP, protowire.AppendVarint(nil, 999)),
	))
	if col.uuid != 9 || len(col.attrs) != 5 {
		t.Fatalf("collection = %d attrs uuid=%d", len(col.attrs), col.uuid)
	}
	ea := interpretAttrs(col)
	if ea.name != "Keeva" {
		t.Fatalf("name = %q", ea.name)
	}
	if ea.profession != 12 || ea.fightPoint != 4321 {
		t.Fatalf("profession/fightPoint = %d/%d", ea.profession, ea.fightPoint)
	}
	if !ea.hasCurHP || ea.curHP != 555 || ea.maxHP != 999 {
		t.Fatalf("hp = %d/%d", ea.curHP, ea.maxHP)
	}
}

func TestParseNearEntities(t *testing.T) {
	ent := appendVarintField(nil, 1, 0x30280)
	ent = appendVarintField(ent, 2, 1)
	ent = appendBytesField(ent, 3, buildAttrCollection(0x30280))
	payload := appendBytesField(nil, 1, ent)

	ents := parseNearEntities(payload, 0)
	if len(ents) != 1 || ents[0].uuid != 0x30280 || ents[0].attrs == nil {
		t.Fatalf("entities = %+v", ents)
	}
}

func TestParseNearEntitiesSpeculative(t *testing.T) {
	ent := appendVarintField(nil, 1, 0x40280)
	// Entity hiding under an unknown field number.
	payload := appendBytesField(nil, 9, ent)
	ents := parseNearEntities(payload, 0)
	if len(ents) != 1 || ents[0].uuid != 0x40280 {
		t.Fatalf("speculative entity not recovered: %+v", ents)
	}

	// Entity list nested one level down under an unknown field.
	nested := appendBytesField(nil, 1, ent)
	payload = appendBytesField(nil, 8, nested)
	ents = parseNearEntities(payload, 0)
	if len(ents) != 1 || ents[0].uuid != 0x40280 {
		t.Fatalf("nested speculative list not recovered: %+v", ents)
	}

	// Pure garbage under an unknown field yields nothing, silently.
	payload = appendBytesField(nil, 9, []byte{0xff, 0xff, 0xff})
	if got := parseNearEntities(payload, 0); len(got) != 0 {
		t.Fatalf("garbage produced entities: %+v", got)
	}
}

func TestParseContainerData(t *testing.T) {
	base := appendVarintField(nil, 1, 0x04b0)
	base = appendBytesField(base, 5, []byte("Riven"))
	base = appendVarintField(base, 35, 8800)
	prof := appendVarintField(nil, 1, 13)
	cs := appendBytesField(nil, 2, base)
	cs = appendBytesField(cs, 61, prof)
	payload := appendBytesField(nil, 1, cs)

	got := parseContainerData(payload)
	if got == nil || got.base == nil {
		t.Fatalf("container not parsed")
	}
	if got.base.charID != 0x04b0 || got.base.name != "Riven" || got.base.fightPoint != 8800 {
		t.Fatalf("base = %+v", got.base)
	}
	if got.profession != 13 {
		t.Fatalf("profession = %d", got.profession)
	}
}

func TestParseNeverPanics(t *testing.T) {
	inputs := [][]byte{
		nil,
		{0x00},
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		{0x0a, 0xff},             // bytes field with absurd length
		{0x08},                   // varint field, no value
		{0x0b, 0x0b, 0x0b, 0x0b}, // start-group wire types
	}
	for _, in := range inputs {
		parseDamageInfo(in)
		parseSkillEffect(in)
		parseAoiSyncDelta(in)
		parseNearDeltaInfo(in)
		parseToMeDeltaInfo(in)
		parseNearEntities(in, 0)
		parseContainerData(in)
		parseAttrCollection(in)
		interpretAttrs(parseAttrCollection(in))
	}
}

func TestValidEntityName(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"Keeva", true},
		{"Mad-Dog_7", true},
		{"", false},
		{"   ", false},
		{"Unknown", false},
		{"totally unKNOWN player", false},
		{"12345", false},             // no letter
		{"a\x01\x02\x03\x04", false}, // mostly junk
		{string(make([]rune, 70)), false},
	}
	for _, c := range cases {
		if got := validEntityName(c.name); got != c.want {
			t.Fatalf("validEntityName(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestSalvageName(t *testing.T) {
	// Length-prefixed UTF-8, the common case.
	raw := append([]byte{5}, []byte("Keeva")...)
	if got := salvageName(raw, 0); got != "Keeva" {
		t.Fatalf("utf8 salvage = %q", got)
	}

	// UTF-16LE at offset 0.
	var u16 []byte
	for _, r := range "Keeva" {
		u16 = append(u16, byte(r), 0)
	}
	if got := salvageName(u16, 0); got != "Keeva" {
		t.Fatalf("utf16 salvage = %q", got)
	}

	// Name buried in a nested message.
	nested := appendBytesField(nil, 2, append([]byte{5}, []byte("Keeva")...))
	if got := salvageName(nested, 0); got != "Keeva" {
		t.Fatalf("nested salvage = %q", got)
	}

	if got := salvageName([]byte{0x00, 0x00, 0x00}, 0); got != "" {
		t.Fatalf("garbage salvaged to %q", got)
	}
}
