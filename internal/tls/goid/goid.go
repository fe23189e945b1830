// Copyright 2025 The threadlocal Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package goid

import "runtime"

const prefix = "goroutine "

// initialLiveBuf is the first buffer size tried by Live. It is doubled until
// the whole dump fits.
const initialLiveBuf = 64 * 1024

// Current returns the ID of the calling goroutine.
//
// Only the first line of the stack trace is needed, so a small fixed buffer
// on the stack is enough and nothing escapes to the heap.
//
// Returns:
//   - int64: Goroutine ID (always positive), or 0 if parsing fails
func Current() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return Parse(buf[:n])
}

// Parse extracts the goroutine ID from stack trace bytes.
//
// Expected format: "goroutine 123 [running]:..."
// Returns the numeric ID (123 in this example) or 0 if the format is invalid.
//
// Direct byte parsing, no string conversion of the number and no regex.
func Parse(buf []byte) int64 {
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}

	var gid int64
	for i := len(prefix); i < len(buf); i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			// Non-digit terminates the ID (usually space before "[running]").
			break
		}
		gid = gid*10 + int64(c-'0')
	}
	return gid
}

// Live returns the IDs of every goroutine that currently exists.
//
// runtime.Stack(all=true) truncates silently when the buffer is too small.
// A truncated dump would make live goroutines look dead, so the buffer is
// grown until the dump fits.
func Live() []int64 {
	size := initialLiveBuf
	for {
		buf := make([]byte, size)
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return ParseAll(buf[:n])
		}
		size *= 2
	}
}

// ParseAll extracts every goroutine ID from a runtime.Stack(all=true) dump.
//
// Input format (example):
//
//	goroutine 1 [running]:
//	main.main()
//	    /path/to/main.go:10 +0x20
//
//	goroutine 5 [chan receive]:
//	main.worker()
//	    /path/to/main.go:20 +0x40
//
// We extract: [1, 5]
func ParseAll(buf []byte) []int64 {
	var gids []int64

	i := 0
	for i < len(buf) {
		end := i
		for end < len(buf) && buf[end] != '\n' {
			end++
		}

		if gid := Parse(buf[i:end]); gid != 0 {
			gids = append(gids, gid)
		}

		i = end + 1
	}

	return gids
}
