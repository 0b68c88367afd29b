package main

import "testing"

func TestMergePlayerMonotonic(t *testing.T) {
	resetPlayers()
	mergePlayer(7, playerUpdate{name: "Keeva", classID: 2, abilityScore: 100})
	mergePlayer(7, playerUpdate{name: "Impostor", classID: 9, abilityScore: 999, specName: "Icicle"})

	p, ok := lookupPlayer(7)
	if !ok {
		t.Fatalf("player missing")
	}
	if p.Name != "Keeva" {
		t.Fatalf("name overwritten: %q", p.Name)
	}
	if p.ClassID != 2 || p.AbilityScore != 100 {
		t.Fatalf("numeric fields overwritten: %+v", p)
	}
	if p.SpecName != "Icicle" {
		t.Fatalf("first spec name not kept: %q", p.SpecName)
	}
}

func TestMergePlayerRejectsInvalid(t *testing.T) {
	resetPlayers()
	mergePlayer(7, playerUpdate{name: "Unknown", classID: -3})
	p, _ := lookupPlayer(7)
	if p.Name != "" || p.ClassID != 0 {
		t.Fatalf("invalid values accepted: %+v", p)
	}
	mergePlayer(7, playerUpdate{name: "Keeva", classID: 2})
	if p, _ := lookupPlayer(7); p.Name != "Keeva" || p.ClassID != 2 {
		t.Fatalf("valid values rejected: %+v", p)
	}
}

func TestMergePlayerIdempotent(t *testing.T) {
	resetPlayers()
	up := playerUpdate{name: "Keeva", classID: 1, specID: 2, abilityScore: 500, specName: "Iaido"}
	mergePlayer(9, up)
	first, _ := lookupPlayer(9)
	mergePlayer(9, up)
	second, _ := lookupPlayer(9)
	if first != second {
		t.Fatalf("merge not idempotent: %+v vs %+v", first, second)
	}
}

func TestMergePlayerZeroUID(t *testing.T) {
	resetPlayers()
	mergePlayer(0, playerUpdate{name: "Keeva"})
	if playerCount() != 0 {
		t.Fatalf("zero uid created an entry")
	}
}
