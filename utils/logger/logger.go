// Package logger is a leveled, object-tagged asynchronous logger on top of logrus.
// Every call takes the emitting object first; its String() becomes the column tag.
package logger

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

type stringer interface {
	String() string
}

type logPair struct {
	logFn func(...any)
	obj   string
	msg   string
	done  chan struct{}
}

const (
	logSize = 1000
	tagSize = 20
)

var (
	logCh     = make(chan logPair, logSize)
	drainOnce sync.Once
)

func objToString(obj any) (objStr string) {
	if obj == nil {
		objStr = "NIL"
	} else if stringerObj, ok := obj.(stringer); ok {
		objStr = stringerObj.String()
	} else if objStr, ok = obj.(string); ok {
	} else {
		t := reflect.TypeOf(obj)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		objStr = t.Name()
	}
	if len(objStr) > tagSize {
		objStr = objStr[:tagSize]
	}
	return
}

func startDrain() {
	drainOnce.Do(func() {
		go func() {
			sb := new(bytes.Buffer)
			for pair := range logCh {
				if pair.done != nil {
					close(pair.done)
					continue
				}
				fmt.Fprintf(sb, "|%20s|%-100s", pair.obj, pair.msg)
				pair.logFn(sb.String())
				sb.Reset()
			}
		}()
	})
}

// Init sets the global level and the text formatter and starts the writer goroutine.
func Init(lvl logrus.Level) {
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		PadLevelText:    true,
		TimestampFormat: "2006/02/01 15:04:05",
	})
	startDrain()
}

// SetOutput redirects log output.
func SetOutput(w io.Writer) {
	Flush()
	logrus.SetOutput(w)
}

// Flush blocks until every message queued before the call has been written.
func Flush() {
	startDrain()
	done := make(chan struct{})
	logCh <- logPair{done: done}
	<-done
}

func enqueue(lvl logrus.Level, logFn func(...any), object any, msg func() string) {
	if logrus.GetLevel() < lvl {
		return
	}
	startDrain()
	logCh <- logPair{
		logFn: logFn,
		obj:   objToString(object),
		msg:   msg(),
	}
}

func Trace(object any, message string) {
	enqueue(logrus.TraceLevel, logrus.Trace, object, func() string { return message })
}

func Tracef(object any, message string, args ...any) {
	enqueue(logrus.TraceLevel, logrus.Trace, object, func() string { return fmt.Sprintf(message, args...) })
}

func Debug(object any, message string) {
	enqueue(logrus.DebugLevel, logrus.Debug, object, func() string { return message })
}

func Debugf(object any, message string, args ...any) {
	enqueue(logrus.DebugLevel, logrus.Debug, object, func() string { return fmt.Sprintf(message, args...) })
}

func Info(object any, message string) {
	enqueue(logrus.InfoLevel, logrus.Info, object, func() string { return message })
}

func Infof(object any, message string, args ...any) {
	enqueue(logrus.InfoLevel, logrus.Info, object, func() string { return fmt.Sprintf(message, args...) })
}

func Warning(object any, message string) {
	enqueue(logrus.WarnLevel, logrus.Warning, object, func() string { return message })
}

func Warningf(object any, message string, args ...any) {
	enqueue(logrus.WarnLevel, logrus.Warning, object, func() string { return fmt.Sprintf(message, args...) })
}

func Error(object any, message string) {
	enqueue(logrus.ErrorLevel, logrus.Error, object, func() string { return message })
}

func Errorf(object any, message string, args ...any) {
	enqueue(logrus.ErrorLevel, logrus.Error, object, func() string { return fmt.Sprintf(message, args...) })
}

func Fatal(object any, message string) {
	Flush()
	logrus.Fatalf("|%20s|%-100s", objToString(object), message)
}

func Fatalf(object any, message string, args ...any) {
	Flush()
	logrus.Fatalf("|%20s|%-100s", objToString(object), fmt.Sprintf(message, args...))
}
