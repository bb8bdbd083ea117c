package report

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

type LogMsg struct {
	Level          LogLevel `json:"log_type"`
	Message        string   `json:"log_msg"`
	CID            string   `json:"cid,omitempty"`
	CollectionName string   `json:"collection_name,omitempty"`
	SID            string   `json:"collection_sid,omitempty"`
}

// CollectionReport is the write-once outcome of reconciling one collection.
type CollectionReport struct {
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Name         string    `json:"name"`
	IsNew        bool      `json:"is_new"`
	Deleted      bool      `json:"deleted"`
	Paused       bool      `json:"paused"`
	CID          string    `json:"cid"`
	SID          string    `json:"collection_sid"`
	AddedCount   int       `json:"added_count"`
	RemovedCount int       `json:"removed_count"`
	MissingRefs  []string  `json:"missing_refs"`
	Errors       []string  `json:"errors"`
}

// JobReport aggregates one run. Built fresh per run, posted upstream, discarded.
type JobReport struct {
	APIKey            string             `json:"api_key"`
	ClientVersion     string             `json:"client_version"`
	JobID             string             `json:"job_id"`
	APIVersion        int                `json:"api_version"`
	MinClientVersion  string             `json:"client_min_version"`
	Error             bool               `json:"error"`
	LogMsgs           []LogMsg           `json:"log_msgs"`
	StartTime         time.Time          `json:"start_time"`
	EndTime           time.Time          `json:"end_time"`
	CollectionReports []CollectionReport `json:"collection_reports"`
}

// Report accumulates a JobReport and mirrors every line into the shared ring
// so operators can watch a run in flight.
type Report struct {
	Job  *JobReport
	ring *Ring
}

func New(ring *Ring) *Report {
	return &Report{
		Job:  &JobReport{LogMsgs: []LogMsg{}, CollectionReports: []CollectionReport{}},
		ring: ring,
	}
}

// Add records a job-level line.
func (r *Report) Add(level LogLevel, msg string) {
	r.log(LogMsg{Level: level, Message: msg})
}

// AddForCollection records a line attributed to a collection and appends it to
// that collection's own error list when it is an error.
func (r *Report) AddForCollection(level LogLevel, msg string, cr *CollectionReport) {
	r.log(LogMsg{
		Level:          level,
		Message:        msg,
		CID:            cr.CID,
		CollectionName: cr.Name,
		SID:            cr.SID,
	})
	if level == LevelError {
		cr.Errors = append(cr.Errors, msg)
		r.Job.Error = true
	}
}

func (r *Report) log(m LogMsg) {
	r.Job.LogMsgs = append(r.Job.LogMsgs, m)
	if r.ring != nil {
		r.ring.Push(m)
	}
	switch m.Level {
	case LevelError:
		log.Printf("[sync] ERROR %s", m.Message)
	case LevelWarning:
		log.Printf("[sync] WARN %s", m.Message)
	default:
		log.Printf("[sync] %s", m.Message)
	}
}

// AppendCollection attaches a finished collection report to the job.
func (r *Report) AppendCollection(cr CollectionReport) {
	r.Job.CollectionReports = append(r.Job.CollectionReports, cr)
}

// Summarize renders a human-readable digest of the run.
func (r *Report) Summarize() string {
	var b strings.Builder
	line := strings.Repeat("-", 50)
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Error: %v\n", r.Job.Error)
	fmt.Fprintf(&b, "Start Time: %s\n", r.Job.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "End Time: %s\n", r.Job.EndTime.Format(time.RFC3339))
	fmt.Fprintln(&b, line)
	for _, cr := range r.Job.CollectionReports {
		fmt.Fprintf(&b, "Collection: %s\n", cr.Name)
		fmt.Fprintf(&b, "  Is New: %v\n", cr.IsNew)
		fmt.Fprintf(&b, "  Deleted: %v\n", cr.Deleted)
		fmt.Fprintf(&b, "  Sync paused: %v\n", cr.Paused)
		fmt.Fprintf(&b, "  Added: %d\n", cr.AddedCount)
		fmt.Fprintf(&b, "  Removed: %d\n", cr.RemovedCount)
		fmt.Fprintf(&b, "  Missing refs: %d\n", len(cr.MissingRefs))
		fmt.Fprintln(&b, line)
	}
	return b.String()
}

// Ring retains the most recent log lines across runs for the operator API.
type Ring struct {
	mu    sync.RWMutex
	lines []LogMsg
	size  int
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = 200
	}
	return &Ring{size: size}
}

func (r *Ring) Push(m LogMsg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, m)
	if len(r.lines) > r.size {
		r.lines = r.lines[len(r.lines)-r.size:]
	}
}

// Lines returns the retained lines, oldest first.
func (r *Ring) Lines() []LogMsg {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]LogMsg, len(r.lines))
	copy(out, r.lines)
	return out
}
