// Package snapshot turns one raw "current time entry" body into a TimerSnapshot.
//
// Parse is total: malformed or missing fields never produce an error, they
// degrade to "not running" or to "started now". Every decision is reported
// through the Trace callback so the API's inconsistent encodings can be
// debugged from the log channel.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/st-keller/timer-watch/types"
)

// Trace receives one diagnostic line per parsing decision. May be nil.
type Trace func(message string)

// Timestamp magnitude thresholds.
const (
	microsecondDigits = 15                // more digits than this => microseconds
	millisecondFloor  = 1_000_000_000_000 // above this => milliseconds, else seconds
	futureTolerance   = time.Hour         // start further ahead than this is discarded
)

// maxDurationMs is the largest elapsed time representable as time.Duration.
const maxDurationMs = math.MaxInt64 / int64(time.Millisecond)

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type entry struct {
	Task     json.RawMessage `json:"task"`
	Duration json.RawMessage `json:"duration"`
	Start    json.RawMessage `json:"start"`
}

type task struct {
	ID   json.RawMessage `json:"id"`
	Name json.RawMessage `json:"name"`
}

// Parse converts body into a snapshot observed at now.
func Parse(body []byte, now time.Time, trace Trace) types.TimerSnapshot {
	logf := func(format string, args ...interface{}) {
		if trace != nil {
			trace(fmt.Sprintf(format, args...))
		}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		logf("Response is not a JSON object (%v), treating as no active timer", err)
		return types.TimerSnapshot{}
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		logf("No active timer ('data' absent or null)")
		return types.TimerSnapshot{}
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		logf("'data' is not a time entry object (%v), treating as no active timer", err)
		return types.TimerSnapshot{}
	}

	snap := types.TimerSnapshot{Running: true}
	var t task
	if len(e.Task) > 0 && json.Unmarshal(e.Task, &t) == nil {
		snap.TaskID, _ = scalarString(t.ID)
		snap.TaskName, _ = scalarString(t.Name)
	} else if len(e.Task) > 0 {
		logf("Ignoring malformed 'task': %s", string(e.Task))
	}

	snap.StartTime = startTime(e, now, logf)

	logf("Final values - Task: %s, StartTime: %s, Elapsed: %s",
		orNA(snap.TaskName), snap.StartTime.Format(time.RFC3339), snap.Elapsed(now).Round(time.Second))

	return snap
}

// startTime applies the priority: negative duration, then start, then now.
func startTime(e entry, now time.Time, logf func(string, ...interface{})) time.Time {
	if d, ok := number(e.Duration); ok {
		logf("Duration: %dms", d)
		if d < 0 && absInt64(d) > maxDurationMs {
			logf("Duration %dms out of range, ignoring", d)
		} else if d < 0 {
			elapsed := time.Duration(absInt64(d)) * time.Millisecond
			start := now.Add(-elapsed)
			logf("Using duration to calculate start time: %s (elapsed: %s)", start.Format(time.RFC3339), elapsed)
			return start
		}
	}

	if len(e.Start) > 0 {
		logf("Found 'start' property, raw: %s", string(e.Start))
		if ts, ok := number(e.Start); ok {
			if start, ok := fromEpoch(ts, now, logf); ok {
				return start
			}
		} else {
			logf("Failed to parse start timestamp as number")
		}
	} else {
		logf("No 'start' property found in data")
	}

	logf("No start time found, using current time: %s", now.Format(time.RFC3339))
	return now
}

// fromEpoch normalizes a start value (us, ms or s since epoch).
func fromEpoch(ts int64, now time.Time, logf func(string, ...interface{})) (time.Time, bool) {
	if ts <= 0 {
		logf("Start timestamp %d is not positive, ignoring", ts)
		return time.Time{}, false
	}

	if digits(ts) > microsecondDigits {
		ts /= 1000
		logf("Converted from microseconds to milliseconds: %d", ts)
	}

	var start time.Time
	if ts > millisecondFloor {
		start = time.UnixMilli(ts)
		logf("Parsed as milliseconds: %s", start.Format(time.RFC3339))
	} else {
		start = time.Unix(ts, 0)
		logf("Parsed as seconds: %s", start.Format(time.RFC3339))
	}

	if start.After(now.Add(futureTolerance)) {
		logf("Parsed time is in the future, ignoring")
		return time.Time{}, false
	}
	return start, true
}

// number accepts a JSON number or a string holding one.
func number(raw json.RawMessage) (int64, bool) {
	s, ok := scalarString(raw)
	s = strings.TrimSpace(s)
	if !ok || s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// scalarString renders a JSON string or number as text.
func scalarString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}

func digits(n int64) int {
	return len(strconv.FormatInt(absInt64(n), 10))
}

func absInt64(n int64) int64 {
	if n < 0 {
		if n == math.MinInt64 {
			return math.MaxInt64
		}
		return -n
	}
	return n
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
