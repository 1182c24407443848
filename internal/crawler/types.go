package crawler

import (
	"fmt"
	"strings"
	"time"
)

// DefaultPageSize is the offset stride used when a platform does not override it.
const DefaultPageSize = 25

// Field names a candidate attribute an EligibilityRule can inspect.
type Field string

// Rule fields recognized by the eligibility engine.
const (
	FieldTitle    Field = "title"
	FieldCompany  Field = "company"
	FieldLocation Field = "location"
)

// Valid reports whether f is one of the rule fields.
func (f Field) Valid() bool {
	switch f {
	case FieldTitle, FieldCompany, FieldLocation:
		return true
	default:
		return false
	}
}

// EligibilityRule rejects a candidate whose Field contains Keyword (case-insensitive).
type EligibilityRule struct {
	Field   Field  `json:"field" mapstructure:"field"`
	Keyword string `json:"keyword" mapstructure:"keyword"`
}

// CrawlTarget is one configured crawl destination.
type CrawlTarget struct {
	ID                string            `json:"id" mapstructure:"id"`
	Platform          string            `json:"platform" mapstructure:"platform"`
	Name              string            `json:"name" mapstructure:"name"`
	URL               string            `json:"url" mapstructure:"url"`
	MessageTemplate   string            `json:"message_template" mapstructure:"message_template"`
	Priority          int               `json:"priority" mapstructure:"priority"`
	PageCount         int               `json:"page_count" mapstructure:"page_count"`
	ApplyFlagRequired bool              `json:"apply_flag_required" mapstructure:"apply_flag_required"`
	Language          string            `json:"language" mapstructure:"language"`
	Rules             []EligibilityRule `json:"rules" mapstructure:"rules"`
	OutputDestination string            `json:"output_destination" mapstructure:"output_destination"`
	Enabled           bool              `json:"enabled" mapstructure:"enabled"`
	CrawlInterval     time.Duration     `json:"crawl_interval" mapstructure:"crawl_interval"`
	LastCrawlAt       *time.Time        `json:"last_crawl_at,omitempty" mapstructure:"-"`
	LastCrawlCount    int               `json:"last_crawl_count" mapstructure:"-"`
	DeletedAt         *time.Time        `json:"deleted_at,omitempty" mapstructure:"-"`
}

// Validate reports configuration problems that require operator correction.
func (t CrawlTarget) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTarget)
	}
	if strings.TrimSpace(t.URL) == "" {
		return fmt.Errorf("%w: target %s has no url", ErrInvalidTarget, t.ID)
	}
	if t.PageCount < 0 {
		return fmt.Errorf("%w: target %s page_count must be >= 0", ErrInvalidTarget, t.ID)
	}
	for i, rule := range t.Rules {
		if !rule.Field.Valid() {
			return fmt.Errorf("%w: target %s rule %d has unknown field %q", ErrInvalidTarget, t.ID, i, rule.Field)
		}
		if strings.TrimSpace(rule.Keyword) == "" {
			return fmt.Errorf("%w: target %s rule %d has empty keyword", ErrInvalidTarget, t.ID, i)
		}
	}
	return nil
}

// Due reports whether the target's crawl interval has elapsed at now.
func (t CrawlTarget) Due(now time.Time) bool {
	if t.CrawlInterval <= 0 || t.LastCrawlAt == nil {
		return true
	}
	return !now.Before(t.LastCrawlAt.Add(t.CrawlInterval))
}

// CandidateItem is an item discovered on a crawled page, alive for one task.
type CandidateItem struct {
	Identifier string            `json:"identifier"`
	Language   string            `json:"language"`
	ApplyFlag  bool              `json:"apply_flag"`
	Fields     map[string]string `json:"fields"`
}

// Field returns the extracted text for name, or "".
func (c CandidateItem) Field(name string) string {
	if c.Fields == nil {
		return ""
	}
	return c.Fields[name]
}

// Record is an accepted candidate handed to the Record Store.
type Record struct {
	ChannelID  string            `json:"channel_id"`
	Identifier string            `json:"identifier"`
	Body       string            `json:"body"`
	Metadata   map[string]string `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}

// IgnoredRecord is a rejected candidate kept for observability.
type IgnoredRecord struct {
	ChannelID  string            `json:"channel_id"`
	Identifier string            `json:"identifier"`
	Fields     map[string]string `json:"fields"`
	Reason     string            `json:"reason"`
	CreatedAt  time.Time         `json:"created_at"`
}

// TaskTrigger describes what enqueued a task.
type TaskTrigger string

// Task trigger values.
const (
	TriggerSchedule     TaskTrigger = "schedule"
	TriggerManual       TaskTrigger = "manual"
	TriggerContinuation TaskTrigger = "continuation"
)

// TaskRequest is one Crawl Task invocation travelling through the queue.
type TaskRequest struct {
	TaskID      string      `json:"task_id"`
	TargetID    string      `json:"target_id"`
	Platform    string      `json:"platform"`
	Offset      int         `json:"offset"`
	ForceRepeat bool        `json:"force_repeat"`
	Trigger     TaskTrigger `json:"trigger"`
	Submitted   int64       `json:"submitted"`
}

// TaskState is a Crawl Task state machine position.
type TaskState string

// Crawl Task states.
const (
	StateInit             TaskState = "init"
	StateResourceAcquired TaskState = "resource_acquired"
	StateNavigating       TaskState = "navigating"
	StateEnumerating      TaskState = "enumerating"
	StateItemProcessing   TaskState = "item_processing"
	StateSummarized       TaskState = "summarized"
	StateDone             TaskState = "done"
	StateFailed           TaskState = "failed"
)

// RunStats counts per-candidate outcomes for one task invocation.
type RunStats struct {
	Candidates  int  `json:"candidates"`
	Notified    int  `json:"notified"`
	Ignored     int  `json:"ignored"`
	Duplicates  int  `json:"duplicates"`
	Skipped     int  `json:"skipped"`
	Undelivered int  `json:"undelivered"`
	Aborted     bool `json:"aborted"`
}

// TaskResult is what a Crawl Task reports once it reaches DONE or FAILED.
// Path lists the states visited in order; Contended is set when another
// holder owned the gate.
type TaskResult struct {
	TaskID     string      `json:"task_id"`
	Path       []TaskState `json:"path"`
	State      TaskState   `json:"state"`
	Stats      RunStats    `json:"stats"`
	NextOffset *int        `json:"next_offset,omitempty"`
	Contended  bool        `json:"contended"`
	Err        error       `json:"-"`
}

// Reached reports whether the task passed through state.
func (r TaskResult) Reached(state TaskState) bool {
	for _, s := range r.Path {
		if s == state {
			return true
		}
	}
	return false
}
