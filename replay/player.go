// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/zwhy2025/openbag/config"
	"github.com/zwhy2025/openbag/replay/bagfile"
	"github.com/zwhy2025/openbag/support/logging"
	"github.com/zwhy2025/openbag/transport"
)

// PlayerState is one of the player's three states.
type PlayerState int32

const (
	PlayerStopped PlayerState = iota
	PlayerPlaying
	PlayerPaused
)

func (s PlayerState) String() string {
	switch s {
	case PlayerPlaying:
		return "PLAYING"
	case PlayerPaused:
		return "PAUSED"
	default:
		return "STOPPED"
	}
}

// PlayerStatus is a snapshot of the current player status.
type PlayerStatus struct {
	State  PlayerState
	Played uint64
	Cycles int64
	Topics []string
}

// errPlayerStopped is the sentinel used internally to unwind a play round
// when Stop has been called mid-sleep.
var errPlayerStopped = errors.New("replay: player stopped")

// playerCommand is sent to the play goroutine over Player.commandC.
type playerCommand struct {
	pause  bool
	resume bool
	status chan<- PlayerStatus
}

// Player drives the read → pace → publish → loop/stop state machine
// described for C7. A Player is reusable across sessions: Start may be
// called again after a Stop completes.
type Player struct {
	Logger logging.L

	factory transport.Factory
	reader  *bagfile.Reader
	path    string
	rate    float64
	loop    bool

	state int32 // PlayerState, accessed atomically

	channels map[uint16]bagfile.ChannelInfo
	pubs     map[uint16]transport.Publisher

	played uint64 // atomic
	cycles int64  // atomic

	commandC chan *playerCommand
	stopC    chan struct{}
	doneC    chan struct{}
}

// NewPlayer returns a STOPPED Player that will read path through reader
// and publish through factory. rate is clamped to a positive value,
// defaulting to 1.0.
func NewPlayer(factory transport.Factory, reader *bagfile.Reader, path string, rate float64, loop bool, logger logging.L) *Player {
	if rate <= 0 {
		rate = 1.0
	}
	return &Player{
		Logger:  logging.Must(logger),
		factory: factory,
		reader:  reader,
		path:    path,
		rate:    rate,
		loop:    loop,
	}
}

// NewPlayerFromConfig is a convenience wrapper building a Player and its
// backing bagfile.Reader from a PlayerConfig.
func NewPlayerFromConfig(factory transport.Factory, pc config.PlayerConfig, logger logging.L) *Player {
	return NewPlayer(factory, bagfile.NewReader(), pc.InputPath, pc.PlaybackRate, pc.LoopPlayback, logger)
}

// Start transitions STOPPED→PLAYING: it opens the reader, enumerates
// topics, creates one publisher per channel via the factory, and launches
// the play goroutine.
func (p *Player) Start() error {
	if !atomic.CompareAndSwapInt32(&p.state, int32(PlayerStopped), int32(PlayerPlaying)) {
		return ErrAlreadyRunning
	}

	if err := p.reader.Open(p.path); err != nil {
		atomic.StoreInt32(&p.state, int32(PlayerStopped))
		return errors.Wrapf(err, "opening %q", p.path)
	}

	channels := p.reader.Channels()
	pubs := make(map[uint16]transport.Publisher, len(channels))
	for id, ci := range channels {
		pub, err := p.factory.CreatePublisher(ci.Topic)
		if err != nil {
			for _, existing := range pubs {
				_ = existing.Close()
			}
			_ = p.reader.Close()
			atomic.StoreInt32(&p.state, int32(PlayerStopped))
			return errors.Wrapf(err, "creating publisher for %q", ci.Topic)
		}
		pubs[id] = pub
	}

	p.channels = channels
	p.pubs = pubs
	atomic.StoreUint64(&p.played, 0)
	atomic.StoreInt64(&p.cycles, 0)

	p.commandC = make(chan *playerCommand)
	p.stopC = make(chan struct{})
	p.doneC = make(chan struct{})

	playerPlayingGauge.Set(1)
	playerPausedGauge.Set(0)
	playerCyclesGauge.Set(0)

	go p.run()
	return nil
}

func (p *Player) run() {
	defer close(p.doneC)
	defer func() {
		playerPlayingGauge.Set(0)
		playerPausedGauge.Set(0)
		for _, pub := range p.pubs {
			_ = pub.Close()
		}
		_ = p.reader.Close()
	}()

	for {
		err := p.playRound()
		if err == nil {
			if !p.loop {
				atomic.StoreInt32(&p.state, int32(PlayerStopped))
				return
			}
			atomic.AddInt64(&p.cycles, 1)
			playerCyclesGauge.Inc()
			continue
		}

		if errors.Cause(err) == errPlayerStopped {
			return
		}

		p.Logger.Errorf("playback error: %s", err)
		playerErrors.Inc()
		atomic.StoreInt32(&p.state, int32(PlayerStopped))
		return
	}
}

// playRound plays the file exactly once, from the first record to EOF.
func (p *Player) playRound() error {
	stream, err := p.reader.Messages()
	if err != nil {
		return errors.Wrap(err, "opening message stream")
	}

	var lastLogTimeNs uint64
	first := true

	for {
		if err := p.pumpCommands(0); err != nil {
			return err
		}

		rec, err := stream.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "reading next record")
		}

		if !first {
			deltaNs := int64(rec.LogTimeNs) - int64(lastLogTimeNs)
			if deltaNs > 0 {
				sleepFor := time.Duration(float64(deltaNs)/p.rate) * time.Nanosecond
				if err := p.pumpCommands(sleepFor); err != nil {
					return err
				}
			}
		}
		first = false
		lastLogTimeNs = rec.LogTimeNs

		p.publish(rec)
	}
}

func (p *Player) publish(rec *bagfile.Record) {
	ci, ok := p.channels[rec.ChannelID]
	if !ok {
		p.Logger.Warnf("record references unknown channel %d", rec.ChannelID)
		playerErrors.Inc()
		return
	}
	if ci.Encoding != bagfile.DefaultEncoding {
		// Filter: only protobuf-encoded records are replayed today.
		return
	}

	pub, ok := p.pubs[rec.ChannelID]
	if !ok {
		p.Logger.Warnf("no publisher for channel %d (%s)", rec.ChannelID, ci.Topic)
		playerErrors.Inc()
		return
	}

	if !pub.Publish(rec.Payload) {
		playerErrors.Inc()
		return
	}

	atomic.AddUint64(&p.played, 1)
	playerSentMessages.Inc()
	playerSentBytes.Add(float64(len(rec.Payload)))
}

// pumpCommands sleeps for d, processing any pause/resume/status commands
// that arrive in the meantime. A pause encountered mid-sleep blocks until
// resumed or stopped, and the elapsed pause duration is added back onto
// the remaining sleep so post-resume pacing stays continuous with the
// recording's inter-record gaps.
func (p *Player) pumpCommands(d time.Duration) error {
	deadline := time.Now().Add(d)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			select {
			case <-p.stopC:
				return errPlayerStopped
			case cmd := <-p.commandC:
				if err := p.handleCommand(cmd); err != nil {
					return err
				}
				if paused, err := p.pausedDuration(); err != nil {
					return err
				} else if paused > 0 {
					deadline = deadline.Add(paused)
				}
				continue
			default:
				return nil
			}
		}

		timer := time.NewTimer(remaining)
		select {
		case <-p.stopC:
			timer.Stop()
			return errPlayerStopped
		case cmd := <-p.commandC:
			timer.Stop()
			if err := p.handleCommand(cmd); err != nil {
				return err
			}
			if paused, err := p.pausedDuration(); err != nil {
				return err
			} else if paused > 0 {
				deadline = deadline.Add(paused)
			}
			continue
		case <-timer.C:
			return nil
		}
	}
}

// pausedDuration blocks, if the player was just put into PAUSED by
// handleCommand, until it leaves PAUSED, returning how long that took.
func (p *Player) pausedDuration() (time.Duration, error) {
	if PlayerState(atomic.LoadInt32(&p.state)) != PlayerPaused {
		return 0, nil
	}

	start := time.Now()
	for {
		select {
		case <-p.stopC:
			return 0, errPlayerStopped
		case cmd := <-p.commandC:
			if err := p.handleCommand(cmd); err != nil {
				return 0, err
			}
			if PlayerState(atomic.LoadInt32(&p.state)) != PlayerPaused {
				return time.Since(start), nil
			}
		}
	}
}

func (p *Player) handleCommand(cmd *playerCommand) error {
	switch {
	case cmd.pause:
		if atomic.CompareAndSwapInt32(&p.state, int32(PlayerPlaying), int32(PlayerPaused)) {
			playerPausedGauge.Set(1)
		}
	case cmd.resume:
		if atomic.CompareAndSwapInt32(&p.state, int32(PlayerPaused), int32(PlayerPlaying)) {
			playerPausedGauge.Set(0)
		}
	case cmd.status != nil:
		cmd.status <- p.statusSnapshot()
	}
	return nil
}

func (p *Player) statusSnapshot() PlayerStatus {
	topics := make([]string, 0, len(p.channels))
	for _, ci := range p.channels {
		topics = append(topics, ci.Topic)
	}
	return PlayerStatus{
		State:  PlayerState(atomic.LoadInt32(&p.state)),
		Played: atomic.LoadUint64(&p.played),
		Cycles: atomic.LoadInt64(&p.cycles),
		Topics: topics,
	}
}

// sendCommand delivers cmd to the play goroutine, giving up without
// blocking forever if playback has already finished.
func (p *Player) sendCommand(cmd *playerCommand) {
	select {
	case p.commandC <- cmd:
	case <-p.doneC:
	}
}

// Pause transitions PLAYING→PAUSED.
func (p *Player) Pause() error {
	if PlayerState(atomic.LoadInt32(&p.state)) != PlayerPlaying {
		return ErrNotRunning
	}
	p.sendCommand(&playerCommand{pause: true})
	return nil
}

// Resume transitions PAUSED→PLAYING.
func (p *Player) Resume() error {
	if PlayerState(atomic.LoadInt32(&p.state)) != PlayerPaused {
		return ErrNotPaused
	}
	p.sendCommand(&playerCommand{resume: true})
	return nil
}

// Stop signals the play goroutine and joins it. Stop on an already-STOPPED
// player is a no-op.
func (p *Player) Stop() error {
	if PlayerState(atomic.LoadInt32(&p.state)) == PlayerStopped {
		return nil
	}
	close(p.stopC)
	<-p.doneC
	atomic.StoreInt32(&p.state, int32(PlayerStopped))
	return nil
}

// Status returns a snapshot of the current player status.
func (p *Player) Status() PlayerStatus {
	if PlayerState(atomic.LoadInt32(&p.state)) == PlayerStopped {
		return PlayerStatus{State: PlayerStopped}
	}

	statusC := make(chan PlayerStatus, 1)
	p.sendCommand(&playerCommand{status: statusC})

	select {
	case <-p.doneC:
		return PlayerStatus{State: PlayerStopped}
	case st := <-statusC:
		return st
	}
}
