package main

import (
	"strings"
	"testing"
	"time"
)

func TestFormatEncounter(t *testing.T) {
	view := &encounterView{
		Active:     true,
		Duration:   95 * time.Second,
		EventCount: 12,
		Attackers: []attackerView{
			{UID: 0x04b0, Name: "Keeva", SpecName: "Iaido", TotalDamage: 1234567, DamageCount: 10, CritCount: 5, DPS: 12995.4},
			{UID: 0x05b0, TotalDamage: 1000},
		},
	}
	out := formatEncounter(view)
	if !strings.Contains(out, "encounter active") {
		t.Fatalf("missing state: %q", out)
	}
	if !strings.Contains(out, "1m 35s") {
		t.Fatalf("missing duration: %q", out)
	}
	if !strings.Contains(out, "Keeva (Iaido)") {
		t.Fatalf("missing attacker label: %q", out)
	}
	if !strings.Contains(out, "1,234,567") {
		t.Fatalf("totals not humanized: %q", out)
	}
	if !strings.Contains(out, "50.0% crit") {
		t.Fatalf("crit rate wrong: %q", out)
	}
	if !strings.Contains(out, "#1456") {
		t.Fatalf("nameless attacker should fall back to uid: %q", out)
	}
}

func TestFormatEncounterNil(t *testing.T) {
	if formatEncounter(nil) != "" {
		t.Fatalf("nil view should format empty")
	}
}
