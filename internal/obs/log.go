package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared line logger. Every clinic package writes through
// it so the service emits a single JSON stream on stdout.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogEvent emits one JSON line tagged with the event kind ("request",
// "audit", "error"). A ts field supplied by the caller wins; otherwise the
// line is stamped with the current time.
func LogEvent(kind string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	if _, ok := fields["ts"]; !ok {
		fields["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	fields["type"] = kind
	data, err := json.Marshal(fields)
	if err != nil {
		Logger().Println(`{"type":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// LogRequest is the per-request line written by the logging middleware.
func LogRequest(entry map[string]any) {
	LogEvent("request", entry)
}
