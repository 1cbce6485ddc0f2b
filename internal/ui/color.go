// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package ui holds the colour helpers for omnintel's terminal output.
//
// Colours honour the --no-color flag and the NO_COLOR environment
// variable, and are dropped automatically when output is not a TTY.
package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var (
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
	cyan   = color.New(color.FgCyan)
	dim    = color.New(color.Faint)

	// Bold is exported for callers that format their own lines,
	// such as the tree renderer.
	Bold = color.New(color.Bold)
)

// InitColors applies the --no-color flag. NO_COLOR is already honoured
// by the colour library itself.
func InitColors(noColor bool) {
	color.NoColor = noColor
}

// Success prints a green line with a checkmark prefix.
func Success(msg string) {
	_, _ = green.Println("✓ " + msg)
}

// Successf is Success with fmt-style formatting.
func Successf(format string, args ...any) {
	_, _ = green.Printf("✓ "+format+"\n", args...)
}

// Warning prints a yellow line with a warning prefix.
func Warning(msg string) {
	_, _ = yellow.Println("⚠ " + msg)
}

// Errorf prints a red line with a cross prefix.
func Errorf(format string, args ...any) {
	_, _ = red.Printf("✗ "+format+"\n", args...)
}

// Header prints a bold title underlined with '='.
func Header(text string) {
	_, _ = Bold.Println(text)
	fmt.Println(strings.Repeat("=", len(text)))
}

// Label bolds an inline label such as "Project:".
func Label(text string) string {
	return Bold.Sprint(text)
}

// DimText renders low-priority detail such as paths.
func DimText(text string) string {
	return dim.Sprint(text)
}

// CountText renders a statistic in cyan.
func CountText(count int) string {
	return cyan.Sprint(count)
}
