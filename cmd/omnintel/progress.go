// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// ProgressConfig determines if and how progress is displayed. Progress
// is disabled under --json, -q, and when stderr is not a TTY.
type ProgressConfig struct {
	Enabled bool
	Writer  io.Writer
	NoColor bool
}

func NewProgressConfig(globals GlobalFlags) ProgressConfig {
	enabled := !globals.Quiet && isatty.IsTerminal(os.Stderr.Fd())
	return ProgressConfig{
		Enabled: enabled,
		Writer:  os.Stderr,
		NoColor: globals.NoColor,
	}
}

// NewProgressBar creates a determinate bar, or nil when progress is
// disabled; callers check for nil.
func NewProgressBar(cfg ProgressConfig, total int64, description string) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(cfg.Writer),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(!cfg.NoColor),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// NewSpinner creates an indeterminate spinner for operations with an
// unknown total, or nil when progress is disabled.
func NewSpinner(cfg ProgressConfig, description string) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(cfg.Writer),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionEnableColorCodes(!cfg.NoColor),
	)
}

// barState wraps a progress bar so callers can tick it before the total
// is known or when progress output is disabled.
type barState struct {
	bar *progressbar.ProgressBar
}

func newBarState(cfg ProgressConfig, total int64) *barState {
	if total <= 0 {
		return nil
	}
	return &barState{bar: NewProgressBar(cfg, total, "Indexing files")}
}

func (b *barState) tick() {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Add(1)
}

func (b *barState) finish() {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Finish()
}
