// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import "github.com/pkg/errors"

var (
	// ErrAlreadyRunning is returned by Start when the recorder/player is
	// not currently STOPPED.
	ErrAlreadyRunning = errors.New("replay: already running")

	// ErrNotRunning is returned by Pause when the recorder/player is not
	// currently in its active (RUNNING/PLAYING) state.
	ErrNotRunning = errors.New("replay: not running")

	// ErrNotPaused is returned by Resume when the recorder/player is not
	// currently PAUSED.
	ErrNotPaused = errors.New("replay: not paused")

	// ErrNoTopics is returned by Recorder.Start when the supplied
	// configuration names no topics.
	ErrNoTopics = errors.New("replay: recorder config has no topics")
)
