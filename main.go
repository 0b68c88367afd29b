package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
)

var doDebug bool

func main() {
	iface := flag.String("iface", "", "capture only the named interface")
	pcapPath := flag.String("pcap", "", "replay network frames from a .pcap/.pcapng file")
	resetTimer := flag.Uint("resetTimer", 0, "override the encounter reset timer in seconds (0 keeps the configured value)")
	maxHistory := flag.Int("maxHistory", -1, "override the encounter history bound (0-60, -1 keeps the configured value)")
	flag.BoolVar(&doDebug, "debug", false, "verbose/debug logging")
	flag.Parse()

	loadSettings()
	setupLogging(doDebug || currentSettings().Debug)

	updateSettings(func(s *settings) {
		if *iface != "" {
			s.Interface = *iface
		}
		if *pcapPath != "" {
			s.PcapFile = *pcapPath
		}
		if *resetTimer != 0 {
			s.EncounterResetTimerSeconds = uint32(*resetTimer)
		}
		if *maxHistory >= 0 {
			s.MaxEncounterHistory = uint32(*maxHistory)
		}
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer cancel()

	svc := newMeterService()
	if err := svc.start(ctx); err != nil {
		if errors.Is(err, errNoCaptureDevice) {
			logError("no capture device could be opened; capture requires administrator or CAP_NET_RAW")
		} else {
			logError("start: %v", err)
		}
		os.Exit(1)
	}

	<-ctx.Done()
	svc.stop()
	saveSettings()
}
