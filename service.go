package main

import (
	"context"
	"sync"
	"time"
)

// meterService composes the pipeline: capture driver feeding the frame
// decoder, the opcode queue, and the consumer goroutine running the
// encounter engine. Capture threads only ever touch the queue's producer
// side; all engine state changes happen on the consumer (or the idle timer,
// which shares the engine lock).
type meterService struct {
	bus     *eventBus
	queue   *queue[opcodeMsg]
	decoder *frameDecoder
	driver  *captureDriver
	engine  *encounterEngine

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newMeterService() *meterService {
	bus := newEventBus()
	q := newQueue[opcodeMsg]()
	decoder := newFrameDecoder(q)
	return &meterService{
		bus:     bus,
		queue:   q,
		decoder: decoder,
		driver:  newCaptureDriver(decoder),
		engine:  newEncounterEngine(bus),
	}
}

// start brings the pipeline up. With a capture file configured the file is
// replayed instead of opening live devices; otherwise a total failure to
// open any device is fatal and returned to the caller.
func (s *meterService) start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	applySettings(s.engine)
	watchSettings(func(st settings) {
		s.engine.setIdleTimeout(time.Duration(st.EncounterResetTimerSeconds) * time.Second)
		s.engine.setMaxHistory(int(st.MaxEncounterHistory))
	})

	s.wg.Add(1)
	go s.consumeLoop(ctx)

	startSummaries(ctx, s.bus, s.engine)

	cfg := currentSettings()
	if cfg.PcapFile != "" {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := replayPCAP(ctx, cfg.PcapFile, s.driver); err != nil && ctx.Err() == nil {
				logError("replay %s: %v", cfg.PcapFile, err)
			}
		}()
		return nil
	}
	if err := s.driver.start(ctx, cfg.Interface); err != nil {
		cancel()
		return err
	}
	return nil
}

// consumeLoop drains the opcode queue into the engine until shutdown.
func (s *meterService) consumeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		msg, ok := s.queue.dequeue(ctx)
		if !ok {
			return
		}
		s.engine.handleOpcode(msg)
	}
}

// stop tears the pipeline down in dependency order: capture first so no new
// work arrives, then the consumer, timer and bus.
func (s *meterService) stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.driver.stop()
	s.queue.close()
	s.wg.Wait()
	s.engine.stop()
	s.bus.close()
}
