package logging

import "github.com/fatih/color"

// Per-level color, applied to the level letter/tag prefix of each log line.
var levelColor = map[Level]*color.Color{
	Error: color.New(color.FgRed, color.Bold),
	Warn:  color.New(color.FgYellow),
	Info:  color.New(color.FgGreen),
	Debug: color.New(color.FgCyan),
}

var traceColor = color.New(color.FgWhite)

func (l Level) color() *color.Color {
	if c, ok := levelColor[l]; ok {
		return c
	}
	return traceColor
}
