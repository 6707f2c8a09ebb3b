package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"db-sync/internal/database"
	"db-sync/internal/dialect"
	"db-sync/internal/retry"
	"db-sync/internal/state"

	"github.com/samber/lo"
)

// TablePlaceholder is replaced by the source table name in Job.Query.
const TablePlaceholder = "{table}"

const (
	DefaultBatchSize = 1000
	DefaultQuery     = "SELECT * FROM " + TablePlaceholder
	DefaultKey       = "id"
)

// identifiers are interpolated into SQL, so only plain (optionally
// schema-qualified) names are accepted
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)?$`)

type Endpoint struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

type Pool struct {
	MaxOpen         int           `mapstructure:"max_open"`
	MaxIdle         int           `mapstructure:"max_idle"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Job is one configured source -> destination synchronization.
type Job struct {
	Name        string   `mapstructure:"name"`
	Schedule    string   `mapstructure:"schedule"`
	Source      Endpoint `mapstructure:"source"`
	Destination Endpoint `mapstructure:"destination"`

	Query         string `mapstructure:"query"`
	PrimaryKey    string `mapstructure:"primary_key"`
	DeletedColumn string `mapstructure:"deleted_column"`
	BatchSize     int    `mapstructure:"batch_size"`
	// Mode forces a strategy (full, incremental, delta) instead of detecting one.
	Mode string `mapstructure:"mode"`

	Retry            retry.Policy  `mapstructure:"retry"`
	ThrottleDelay    time.Duration `mapstructure:"throttle_delay"`
	ForceFullRefresh bool          `mapstructure:"force_full_refresh"`
	VerifyTargetKey  bool          `mapstructure:"verify_target_key"`
	Pool             Pool          `mapstructure:"pool"`
}

// ApplyDefaults fills unset fields.
func (j *Job) ApplyDefaults() {
	if j.Query == "" {
		j.Query = DefaultQuery
	}
	if j.PrimaryKey == "" {
		j.PrimaryKey = DefaultKey
	}
	if j.BatchSize == 0 {
		j.BatchSize = DefaultBatchSize
	}
	if j.Retry.MaxRetries == 0 && j.Retry.BaseDelay == 0 {
		j.Retry = retry.DefaultPolicy
	}
	if j.Pool.MaxOpen == 0 {
		j.Pool.MaxOpen = 10
	}
	if j.Pool.MaxIdle == 0 {
		j.Pool.MaxIdle = 5
	}
	if j.Pool.ConnMaxLifetime == 0 {
		j.Pool.ConnMaxLifetime = 30 * time.Minute
	}
}

// ValidationError lists every problem found in one job.
type ValidationError struct {
	Job      string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("job %q: %s", e.Job, strings.Join(e.Problems, "; "))
}

// Validate checks the job without touching any database.
func (j *Job) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if j.Name == "" {
		add("name is required")
	}
	for _, ep := range []struct {
		side string
		e    Endpoint
	}{{"source", j.Source}, {"destination", j.Destination}} {
		switch {
		case ep.e.Driver == "":
			add("%s.driver is required", ep.side)
		case !lo.Contains(dialect.Drivers(), ep.e.Driver):
			add("%s.driver %q is not supported (want one of %s)", ep.side, ep.e.Driver, strings.Join(dialect.Drivers(), ", "))
		}
		if ep.e.DSN == "" {
			add("%s.dsn is required", ep.side)
		}
		if ep.e.Table == "" {
			add("%s.table is required", ep.side)
		} else if !identRe.MatchString(ep.e.Table) {
			add("%s.table %q is not a valid identifier", ep.side, ep.e.Table)
		}
	}

	if n := strings.Count(j.Query, TablePlaceholder); n != 1 {
		add("query must contain exactly one %s placeholder, found %d", TablePlaceholder, n)
	}
	if !identRe.MatchString(j.PrimaryKey) {
		add("primary_key %q is not a valid identifier", j.PrimaryKey)
	}
	if j.DeletedColumn != "" && !identRe.MatchString(j.DeletedColumn) {
		add("deleted_column %q is not a valid identifier", j.DeletedColumn)
	}
	if j.BatchSize < 1 {
		add("batch_size must be at least 1, got %d", j.BatchSize)
	}
	if j.Retry.MaxRetries < 0 || j.Retry.BaseDelay < 0 {
		add("retry settings must not be negative")
	}
	if j.ThrottleDelay < 0 {
		add("throttle_delay must not be negative")
	}
	if j.Mode != "" {
		if _, err := state.ParseMode(j.Mode); err != nil {
			add("%v", err)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Job: j.Name, Problems: problems}
	}
	return nil
}

// ExtractionQuery is Query with the placeholder bound to the source table.
func (j *Job) ExtractionQuery() string {
	return strings.Replace(j.Query, TablePlaceholder, j.Source.Table, 1)
}

// Pair names the checkpoint/watermark namespace of the job.
func (j *Job) Pair() state.Pair {
	return state.Pair{Source: j.Source.Table, Dest: j.Destination.Table}
}

// SourceOptions and DestinationOptions translate the job into connection options.
func (j *Job) SourceOptions() database.Options {
	return j.options(j.Source)
}

func (j *Job) DestinationOptions() database.Options {
	return j.options(j.Destination)
}

func (j *Job) options(e Endpoint) database.Options {
	return database.Options{
		Driver:          e.Driver,
		DSN:             e.DSN,
		MaxOpen:         j.Pool.MaxOpen,
		MaxIdle:         j.Pool.MaxIdle,
		ConnMaxLifetime: j.Pool.ConnMaxLifetime,
		Retry:           j.Retry,
	}
}
