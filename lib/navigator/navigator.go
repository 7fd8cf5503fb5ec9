// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package navigator provides bounded, read-only access to a task's
// context text.
//
// A Navigator wraps an immutable buffer. Every position is a character
// (rune) offset, never a byte offset, so slicing never splits a UTF-8
// sequence. Every operation is total: out-of-range offsets clamp,
// inverted ranges produce empty results, and searches stop at a
// caller-supplied cap. None of them touch the budget or the network.
//
// The optional AccessLog observes which operations a task performed.
// It is the only mutable state a Navigator refers to, and it never
// influences what an operation returns.
package navigator

import (
	"iter"
	"sort"
)

// Navigator is a read-only view of one context buffer. It is safe for
// concurrent use.
type Navigator struct {
	text  string
	runes []rune
	// lineStarts holds the rune offset at which each line begins.
	lineStarts []int
	log        *AccessLog
}

// New returns a Navigator over text. log may be nil.
func New(text string, log *AccessLog) *Navigator {
	runes := []rune(text)
	lineStarts := []int{0}
	for offset, character := range runes {
		if character == '\n' {
			lineStarts = append(lineStarts, offset+1)
		}
	}
	return &Navigator{
		text:       text,
		runes:      runes,
		lineStarts: lineStarts,
		log:        log,
	}
}

// Len returns the buffer length in characters.
func (navigator *Navigator) Len() int { return len(navigator.runes) }

// Text returns the whole buffer.
func (navigator *Navigator) Text() string { return navigator.text }

// Head returns the first n characters. n is clamped to [0, Len()].
func (navigator *Navigator) Head(n int) string {
	end := navigator.clamp(n)
	result := string(navigator.runes[:end])
	navigator.log.record("head", end)
	return result
}

// Tail returns the last n characters. n is clamped to [0, Len()].
func (navigator *Navigator) Tail(n int) string {
	count := navigator.clamp(n)
	result := string(navigator.runes[len(navigator.runes)-count:])
	navigator.log.record("tail", count)
	return result
}

// Slice returns the characters in [start, end). Both offsets are clamped
// to [0, Len()] first; if start then exceeds end the result is empty.
func (navigator *Navigator) Slice(start, end int) string {
	result := navigator.slice(start, end)
	navigator.log.record("slice", len([]rune(result)))
	return result
}

func (navigator *Navigator) slice(start, end int) string {
	start = navigator.clamp(start)
	end = navigator.clamp(end)
	if start >= end {
		return ""
	}
	return string(navigator.runes[start:end])
}

// Around returns match plus up to before characters preceding it and
// after characters following it.
func (navigator *Navigator) Around(match Match, before, after int) string {
	result := navigator.slice(match.Start-max(0, before), match.End+max(0, after))
	navigator.log.record("around", len([]rune(result)))
	return result
}

// LineAt returns the 1-based line number containing offset. Offsets are
// clamped to the buffer.
func (navigator *Navigator) LineAt(offset int) int {
	offset = navigator.clamp(offset)
	return sort.Search(len(navigator.lineStarts), func(index int) bool {
		return navigator.lineStarts[index] > offset
	})
}

// Chunk is one window produced by Chunks.
type Chunk struct {
	Index int    `json:"index"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Chunks yields windows of size characters whose starts are stride
// apart, ending with the window that reaches the end of the buffer.
// A stride smaller than size overlaps consecutive windows. The sequence
// is computed from the immutable buffer, so ranging over it again starts
// from the beginning.
//
// A non-positive size yields nothing. A stride that is non-positive or
// larger than size is treated as size, so the windows always cover the
// whole buffer.
func (navigator *Navigator) Chunks(size, stride int) iter.Seq[Chunk] {
	if stride <= 0 || stride > size {
		stride = size
	}
	return func(yield func(Chunk) bool) {
		if size <= 0 {
			return
		}
		length := len(navigator.runes)
		for index, start := 0, 0; start < length; index, start = index+1, start+stride {
			end := min(start+size, length)
			chunk := Chunk{
				Index: index,
				Start: start,
				End:   end,
				Text:  string(navigator.runes[start:end]),
			}
			navigator.log.record("chunk", end-start)
			if !yield(chunk) || end == length {
				return
			}
		}
	}
}

func (navigator *Navigator) clamp(offset int) int {
	return min(max(offset, 0), len(navigator.runes))
}
