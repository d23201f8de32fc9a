// Package outputlog defines the on-disk format for recorded debug lines.
//
// # OutputLog Format
//
// # Overview
//
// Goals:
//
//  1. Preserve the exact message including binary data and embedded newlines
//  2. Keep the attribution of every line (pid and process name)
//  3. Keep both clocks: the wall clock and the pipeline's relative time
//  4. Detect unfinished writes
//
// # Format Specification
//
// Each record follows this format:
//
//	pid:process timestamp time length: content
//
// A separator \n is always written after content.
//
// # Fields
//
//   - pid: decimal process id, 0 for synthetic lines.
//   - process: the process name. Whitespace is replaced by '_' so the header stays
//     space separated. May be empty.
//   - timestamp: UTC wall clock in RFC 3339 with nanoseconds: 2006-01-02T15:04:05.999999999Z
//   - time: seconds since the capturing pipeline started, as a decimal float.
//   - length: byte length of content.
//   - `: ` literal separator between length and content.
//   - content: the message bytes (exactly length bytes).
//
// # Examples
//
//	1234:app.exe 2025-01-07T12:34:56.789Z 0.25 11: Hello world
//	0:[internal] 2025-01-07T12:34:57Z 1.5 28: Source 'stdin' was removed.
//	77: 2025-01-07T12:34:58Z 2 3: a\nb
//
// # Binary Data Support
//
// The content is length delimited, so it may contain null bytes, newlines and any other
// byte value from 0-255.
package outputlog
