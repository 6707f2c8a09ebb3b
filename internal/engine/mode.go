package engine

import (
	"context"
	"fmt"
	"strings"

	"db-sync/internal/config"
	"db-sync/internal/state"

	"github.com/gookit/slog"
	"github.com/samber/lo"
)

// Decision is the auditable outcome of mode selection.
type Decision struct {
	Mode      state.Mode
	KeyColumn string
	Reason    string
	Forced    bool
}

func (d Decision) String() string {
	return fmt.Sprintf("%s (key %q): %s", d.Mode, d.KeyColumn, d.Reason)
}

// Forced builds a decision that bypasses detection.
func Forced(mode state.Mode, key, reason string) Decision {
	return Decision{Mode: mode, KeyColumn: key, Reason: reason, Forced: true}
}

// Detector picks a load mode from observed table state. Rules are evaluated
// in order and the first match wins:
//  1. empty destination: full
//  2. deleted-flag column present in source with flagged rows: delta
//  3. source primary key discoverable: incremental
//  4. otherwise: full
type Detector struct {
	Source Database
	Dest   Database
	Job    *config.Job
}

func (d *Detector) Detect(ctx context.Context) (Decision, error) {
	job := d.Job

	count, err := d.Dest.RowCount(ctx, job.Destination.Table, "")
	if err != nil {
		return Decision{}, newError(KindConnectivity, "count destination rows", err)
	}
	if count == 0 {
		return Decision{Mode: state.ModeFull, KeyColumn: job.PrimaryKey, Reason: "destination table is empty"}, nil
	}

	key, keyReason, hasKey := d.resolveKey(ctx)

	if job.DeletedColumn != "" {
		exists, err := d.Source.ColumnExists(ctx, job.Source.Table, job.DeletedColumn)
		if err != nil {
			return Decision{}, newError(KindConnectivity, "look up deleted-flag column", err)
		}
		if exists {
			where := fmt.Sprintf("%s = %s", job.DeletedColumn, d.Source.Dialect().TrueLiteral())
			flagged, err := d.Source.RowCount(ctx, job.Source.Table, where)
			if err != nil {
				return Decision{}, newError(KindConnectivity, "count flagged rows", err)
			}
			if flagged > 0 {
				return Decision{
					Mode:      state.ModeDelta,
					KeyColumn: key,
					Reason:    fmt.Sprintf("%d source rows flagged in %s", flagged, job.DeletedColumn),
				}, nil
			}
		}
	}

	if hasKey {
		return Decision{Mode: state.ModeIncremental, KeyColumn: key, Reason: keyReason}, nil
	}
	return Decision{Mode: state.ModeFull, KeyColumn: key, Reason: "destination has rows but no source primary key was found"}, nil
}

// resolveKey prefers the configured key when the source declares it, then
// the first declared key column. When the catalog cannot be read the
// configured key is trusted as is.
func (d *Detector) resolveKey(ctx context.Context) (string, string, bool) {
	configured := d.Job.PrimaryKey

	keys, err := d.Source.PrimaryKeyColumns(ctx, d.Job.Source.Table)
	if err != nil {
		slog.Warnf("[%s] primary key discovery failed, using %q unverified: %v", d.Job.Name, configured, err)
		return configured, fmt.Sprintf("primary key discovery failed, using configured key %s unverified", configured), true
	}
	if len(keys) == 0 {
		return configured, "", false
	}
	if found, ok := lo.Find(keys, func(k string) bool { return strings.EqualFold(k, configured) }); ok {
		return found, fmt.Sprintf("source primary key %s", found), true
	}
	return keys[0], fmt.Sprintf("configured key %s is not a primary key, using %s", configured, keys[0]), true
}
