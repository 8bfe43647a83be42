// Package logging configures the logrus logger used by the minigpt commands.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Formatter renders entries as "[TAG] message key=value ...", with the tag
// colored by level.
type Formatter struct{}

var levelTags = map[logrus.Level]func(a ...interface{}) string{
	logrus.DebugLevel: color.New(color.FgCyan).SprintFunc(),
	logrus.InfoLevel:  color.New(color.FgGreen).SprintFunc(),
	logrus.WarnLevel:  color.New(color.FgYellow).SprintFunc(),
	logrus.ErrorLevel: color.New(color.FgRed).SprintFunc(),
	logrus.FatalLevel: color.New(color.FgRed, color.Bold).SprintFunc(),
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var tag string
	switch entry.Level {
	case logrus.InfoLevel:
		tag = "[INF]"
	case logrus.WarnLevel:
		tag = "[WARN]"
	case logrus.ErrorLevel:
		tag = "[ERR]"
	case logrus.DebugLevel, logrus.TraceLevel:
		tag = "[DBG]"
	case logrus.FatalLevel, logrus.PanicLevel:
		tag = "[FTL]"
	default:
		tag = "[???]"
	}
	if paint, ok := levelTags[entry.Level]; ok {
		tag = paint(tag)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s", tag, entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, " %s=%v", k, entry.Data[k])
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// New returns a logger writing to stderr at info level, or debug level when
// verbose is set.
func New(verbose bool) *logrus.Logger {
	return NewWithWriter(os.Stderr, verbose)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(w io.Writer, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&Formatter{})
	logger.SetLevel(logrus.InfoLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}
