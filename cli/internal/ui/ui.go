// Package ui provides unified console output for the foundry CLI.
//
// Overview:
//   - Responsibility: Leveled user-facing messages, JSON mode, confirmation prompts
//     and tree rendering of generated paths
//   - Key Types: Message, OutputLevel
//   - Concurrency Model: Package state is guarded by a mutex; output calls are safe
//     from any goroutine
//   - Error Semantics: Output failures are reported on stderr and otherwise ignored
//   - Performance Notes: Unbuffered; messages are short and infrequent
//
// Usage:
//
//	ui.Info("Generating %s", name)
//	ui.Error("Generation failed: %v", err)
//	_ = ui.Tree("loja", report.Created)
//
// This is the user-facing channel. Diagnostics go through core/log.
package ui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ddddddO/gtree"
	"github.com/fatih/color"
)

var (
	verbose        bool
	nonInteractive bool
	jsonOutput     bool
	stdout         io.Writer = os.Stdout
	stderr         io.Writer = os.Stderr
	stdin          io.Reader = os.Stdin
	mu             sync.RWMutex
)

// OutputLevel represents the severity level of a message.
type OutputLevel string

// Output levels.
const (
	LevelDebug   OutputLevel = "debug"
	LevelInfo    OutputLevel = "info"
	LevelWarning OutputLevel = "warning"
	LevelError   OutputLevel = "error"
	LevelSuccess OutputLevel = "success"
)

type prefix struct {
	label string
	color *color.Color
}

var prefixes = map[OutputLevel]prefix{
	LevelDebug:   {"DEBUG", color.New(color.FgMagenta)},
	LevelInfo:    {"INFO ", color.New(color.FgCyan)},
	LevelWarning: {"WARN ", color.New(color.FgYellow)},
	LevelError:   {"ERROR", color.New(color.FgRed, color.Bold)},
	LevelSuccess: {"DONE ", color.New(color.FgGreen, color.Bold)},
}

// Message represents a structured output message.
//
// Parameters:
//   - Level: message severity level
//   - Text: human-readable message content
//   - Data: optional structured payload for JSON output
//   - Timestamp: when the message was created
type Message struct {
	Level     OutputLevel `json:"level"`
	Text      string      `json:"text"`
	Data      any         `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SetVerbose enables or disables debug messages.
func SetVerbose(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = enabled
}

// SetNonInteractive disables prompts; Confirm then returns its default.
func SetNonInteractive(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	nonInteractive = enabled
}

// SetJSONOutput switches every message to one JSON object per line on stdout.
func SetJSONOutput(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	jsonOutput = enabled
}

// IsJSON reports whether JSON output is enabled.
func IsJSON() bool {
	mu.RLock()
	defer mu.RUnlock()
	return jsonOutput
}

// SetOutput redirects output and prompt input. Nil arguments keep the
// current stream. It returns a function restoring the previous streams.
func SetOutput(out, errOut io.Writer, in io.Reader) (restore func()) {
	mu.Lock()
	defer mu.Unlock()
	prevOut, prevErr, prevIn := stdout, stderr, stdin
	if out != nil {
		stdout = out
	}
	if errOut != nil {
		stderr = errOut
	}
	if in != nil {
		stdin = in
	}
	return func() {
		mu.Lock()
		defer mu.Unlock()
		stdout, stderr, stdin = prevOut, prevErr, prevIn
	}
}

func output(level OutputLevel, data any, format string, args ...any) {
	mu.RLock()
	useJSON, useVerbose := jsonOutput, verbose
	out, errOut := stdout, stderr
	mu.RUnlock()

	if level == LevelDebug && !useVerbose {
		return
	}

	text := fmt.Sprintf(format, args...)
	if useJSON {
		msg := Message{Level: level, Text: text, Data: data, Timestamp: time.Now().UTC()}
		if err := json.NewEncoder(out).Encode(msg); err != nil {
			fmt.Fprintf(errOut, "failed to encode JSON output: %v\n", err)
		}
		return
	}

	w := out
	if level == LevelError || level == LevelWarning {
		w = errOut
	}
	p := prefixes[level]
	fmt.Fprintf(w, "%s %s\n", p.color.Sprint(p.label), text)
}

// Debug outputs a message shown only in verbose mode.
func Debug(format string, args ...any) {
	output(LevelDebug, nil, format, args...)
}

// Info outputs an informational message.
func Info(format string, args ...any) {
	output(LevelInfo, nil, format, args...)
}

// Warning outputs a warning message on stderr.
func Warning(format string, args ...any) {
	output(LevelWarning, nil, format, args...)
}

// Error outputs an error message on stderr.
func Error(format string, args ...any) {
	output(LevelError, nil, format, args...)
}

// Success outputs a success message.
func Success(format string, args ...any) {
	output(LevelSuccess, nil, format, args...)
}

// Result outputs a success message carrying data. In JSON mode data is
// embedded in the message; otherwise only the text is printed.
func Result(data any, format string, args ...any) {
	output(LevelSuccess, data, format, args...)
}

// Step outputs a step indicator with message.
func Step(step, total int, format string, args ...any) {
	if IsJSON() {
		Debug(format, args...)
		return
	}
	mu.RLock()
	out := stdout
	mu.RUnlock()
	fmt.Fprintf(out, "  [%d/%d] %s\n", step, total, fmt.Sprintf(format, args...))
}

// Confirm asks a yes/no question. In non-interactive or JSON mode it
// returns def without prompting.
func Confirm(def bool, format string, args ...any) bool {
	mu.RLock()
	skip := nonInteractive || jsonOutput
	out, in := stdout, stdin
	mu.RUnlock()
	if skip {
		return def
	}

	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	fmt.Fprintf(out, "%s %s ", fmt.Sprintf(format, args...), hint)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	}
	return def
}

// Tree prints paths as a directory tree under root. Paths are slash
// separated; shared directories are printed once.
func Tree(root string, paths []string) error {
	mu.RLock()
	out := stdout
	mu.RUnlock()
	return WriteTree(out, root, paths)
}

// WriteTree renders paths as a directory tree under root to w.
func WriteTree(w io.Writer, root string, paths []string) error {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	top := gtree.NewRoot(root)
	nodes := map[string]*gtree.Node{".": top}
	var parent func(dir string) *gtree.Node
	parent = func(dir string) *gtree.Node {
		if n, ok := nodes[dir]; ok {
			return n
		}
		n := parent(path.Dir(dir)).Add(path.Base(dir))
		nodes[dir] = n
		return n
	}
	for _, p := range sorted {
		p = path.Clean(p)
		parent(path.Dir(p)).Add(path.Base(p))
	}
	return gtree.OutputFromRoot(w, top)
}
