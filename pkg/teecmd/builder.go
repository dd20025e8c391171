// Package teecmd builds the FFmpeg command a restreamer process runs to fan one
// input out to many RTMP(S) destinations through the tee muxer.
//
// This layer is pure command construction: no execution, no I/O.
//
// Shape:
//
//	-re -i <input> -c:v copy -c:a copy -f tee -map 0:v -map 0:a [-vf <filter>] "[f=flv]<url1>|[f=flv]<url2>"
//
// Output URLs carry stream keys. String() must never be logged; use Redacted().
package teecmd

import (
	"errors"
	"strings"
)

var (
	ErrNoInput   = errors.New("teecmd: input url required")
	ErrNoOutputs = errors.New("teecmd: at least one output required")
)

// Builder is a fluent, single-use command builder. It is NOT concurrency-safe.
type Builder struct {
	input    string
	realtime bool
	filter   string
	format   string
	outputs  []string
}

// NewBuilder returns a Builder reading input at native rate, muxing outputs as FLV.
func NewBuilder(input string) *Builder {
	return &Builder{input: input, realtime: true, format: "flv"}
}

// WithRealtime toggles -re (read input at native frame rate).
func (b *Builder) WithRealtime(on bool) *Builder {
	b.realtime = on
	return b
}

// WithVideoFilter sets -vf; empty clears it.
func (b *Builder) WithVideoFilter(f string) *Builder {
	b.filter = f
	return b
}

// WithFormat sets the tee slave format (default flv).
func (b *Builder) WithFormat(f string) *Builder {
	if f != "" {
		b.format = f
	}
	return b
}

// WithOutput appends a destination; empty URLs are skipped.
func (b *Builder) WithOutput(url string) *Builder {
	if url != "" {
		b.outputs = append(b.outputs, url)
	}
	return b
}

// Validate reports whether the builder can produce a runnable command.
func (b *Builder) Validate() error {
	if b.input == "" {
		return ErrNoInput
	}
	if len(b.outputs) == 0 {
		return ErrNoOutputs
	}
	return nil
}

// Argv returns the argument vector without the ffmpeg binary name.
// The tee target list is a single unquoted element.
func (b *Builder) Argv() []string {
	args := make([]string, 0, 16)
	if b.realtime {
		args = append(args, "-re")
	}
	args = append(args,
		"-i", b.input,
		"-c:v", "copy",
		"-c:a", "copy",
		"-f", "tee",
		"-map", "0:v",
		"-map", "0:a",
	)
	if b.filter != "" {
		args = append(args, "-vf", b.filter)
	}
	return append(args, b.teeTargets(b.outputs))
}

// String renders the command the restreamer expects, with the tee target list quoted.
func (b *Builder) String() string {
	return b.render(b.outputs)
}

// Redacted renders the command with the last path segment of every output
// (the stream key) masked.
func (b *Builder) Redacted() string {
	masked := make([]string, len(b.outputs))
	for i, u := range b.outputs {
		masked[i] = RedactURL(u)
	}
	return b.render(masked)
}

func (b *Builder) render(outputs []string) string {
	argv := b.Argv()
	argv[len(argv)-1] = `"` + b.teeTargets(outputs) + `"`
	return strings.Join(argv, " ")
}

func (b *Builder) teeTargets(outputs []string) string {
	var sb strings.Builder
	for i, u := range outputs {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString("[f=")
		sb.WriteString(b.format)
		sb.WriteByte(']')
		sb.WriteString(u)
	}
	return sb.String()
}

// RedactURL masks everything after the last '/' of a publish URL.
func RedactURL(u string) string {
	i := strings.LastIndexByte(u, '/')
	if i < 0 || i == len(u)-1 {
		return u
	}
	if j := strings.Index(u, "://"); j >= 0 && i <= j+2 {
		return u
	}
	return u[:i+1] + "****"
}
