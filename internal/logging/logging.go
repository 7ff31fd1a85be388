// Package logging provides structured JSON logging for orchestrator
// components. Events go to stderr, one JSON object per line.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event represents a structured log event
type Event struct {
	Timestamp string         `json:"ts"`
	Level     Level          `json:"level"`
	Component string         `json:"component"`
	Event     string         `json:"event"`
	Agent     string         `json:"agent,omitempty"`
	Item      string         `json:"item,omitempty"`
	Duration  int64          `json:"duration_ms,omitempty"`
	Error     string         `json:"error,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Logger provides structured logging for one component.
type Logger struct {
	component string
	agent     string
	item      string
	out       io.Writer
	mu        *sync.Mutex
}

// New creates a new logger for a component
func New(component string) *Logger {
	return &Logger{component: component, out: os.Stderr, mu: &sync.Mutex{}}
}

// NewWithOutput creates a logger writing to w (for tests).
func NewWithOutput(component string, w io.Writer) *Logger {
	return &Logger{component: component, out: w, mu: &sync.Mutex{}}
}

// WithAgent sets the agent context
func (l *Logger) WithAgent(agent string) *Logger {
	c := *l
	c.agent = agent
	return &c
}

// WithItem sets the queue item context
func (l *Logger) WithItem(item string) *Logger {
	c := *l
	c.item = item
	return &c
}

// log emits a structured log event
func (l *Logger) log(level Level, event string, extra map[string]any, err error) {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Component: l.component,
		Event:     event,
		Agent:     l.agent,
		Item:      l.item,
		Extra:     extra,
	}
	if err != nil {
		e.Error = err.Error()
	}

	data, _ := json.Marshal(e)
	l.mu.Lock()
	fmt.Fprintln(l.out, string(data))
	l.mu.Unlock()
}

// Debug logs a debug event
func (l *Logger) Debug(event string, extra map[string]any) {
	l.log(LevelDebug, event, extra, nil)
}

// Info logs an info event
func (l *Logger) Info(event string, extra map[string]any) {
	l.log(LevelInfo, event, extra, nil)
}

// Warn logs a warning event
func (l *Logger) Warn(event string, extra map[string]any, err error) {
	l.log(LevelWarn, event, extra, err)
}

// Error logs an error event
func (l *Logger) Error(event string, extra map[string]any, err error) {
	l.log(LevelError, event, extra, err)
}

// TimedEvent logs an event with its duration since start.
func (l *Logger) TimedEvent(event string, start time.Time, extra map[string]any) {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     LevelInfo,
		Component: l.component,
		Event:     event,
		Agent:     l.agent,
		Item:      l.item,
		Duration:  time.Since(start).Milliseconds(),
		Extra:     extra,
	}

	data, _ := json.Marshal(e)
	l.mu.Lock()
	fmt.Fprintln(l.out, string(data))
	l.mu.Unlock()
}
