package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
)

var shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")

// formatEncounter renders one snapshot as ranked log lines. This is the
// console-facing stand-in for the external UI.
func formatEncounter(view *encounterView) string {
	if view == nil {
		return ""
	}
	state := "ended"
	if view.Active {
		state = "active"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "encounter %s, %s, %d events",
		state,
		durafmt.Parse(view.Duration.Truncate(time.Second)).LimitFirstN(2).Format(shortUnits),
		view.EventCount)
	for i, a := range view.Attackers {
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("#%d", a.UID)
		}
		cls := a.SpecName
		if cls == "" {
			cls = a.ClassName
		}
		if cls != "" {
			name += " (" + cls + ")"
		}
		critPct := 0.0
		if a.DamageCount > 0 {
			critPct = 100 * float64(a.CritCount) / float64(a.DamageCount)
		}
		fmt.Fprintf(&b, "\n  %2d. %-28s %12s dmg  %10s dps  %5.1f%% crit  %s heal",
			i+1, name,
			humanize.Comma(int64(a.TotalDamage)),
			humanize.Comma(int64(a.DPS)),
			critPct,
			humanize.Comma(int64(a.HealingDone)))
	}
	return b.String()
}

// startSummaries subscribes the logger to the bus and, when an interval is
// configured, logs the active encounter periodically.
func startSummaries(ctx context.Context, bus *eventBus, engine *encounterEngine) {
	bus.subscribe(func(ev meterEvent) {
		switch ev.kind {
		case evEncounterStarted:
			logError("encounter started")
		case evEncounterEnded:
			logError("%s", formatEncounter(ev.encounter))
		case evServerChange:
			logError("game server changed")
		}
	})

	interval := time.Duration(currentSettings().SummaryIntervalSeconds) * time.Second
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if view := engine.currentView(); view != nil && view.Active {
					logError("%s", formatEncounter(view))
				}
			}
		}
	}()
}
