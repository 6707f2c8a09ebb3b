package schema

import (
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Finding is one compatibility observation about a column.
type Finding struct {
	Severity Severity
	Column   string
	Message  string
}

func (f Finding) String() string {
	if f.Column == "" {
		return fmt.Sprintf("[%s] %s", f.Severity, f.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Column, f.Message)
}

// Report is the outcome of Compare. Compatible is false as soon as one
// ERROR finding exists; warnings never block.
type Report struct {
	Compatible bool
	Errors     []Finding
	Warnings   []Finding
}

func (r *Report) addError(col, format string, args ...any) {
	r.Errors = append(r.Errors, Finding{Severity: SeverityError, Column: col, Message: fmt.Sprintf(format, args...)})
	r.Compatible = false
}

func (r *Report) addWarning(col, format string, args ...any) {
	r.Warnings = append(r.Warnings, Finding{Severity: SeverityWarning, Column: col, Message: fmt.Sprintf(format, args...)})
}

// Summary renders the errors of a report on one line.
func (r *Report) Summary() string {
	parts := make([]string, 0, len(r.Errors))
	for _, f := range r.Errors {
		parts = append(parts, f.String())
	}
	return strings.Join(parts, "; ")
}

// Compare checks that rows shaped like source can be written into dest.
// When targetPK is set it must name the destination's own, externally
// assigned primary key: copied key values would collide with generated ones.
func Compare(source, dest []*Column, targetPK string) Report {
	report := Report{Compatible: true}

	seen := make(map[string]bool, len(source))
	for _, sc := range source {
		seen[strings.ToLower(sc.Name)] = true

		dc := FindColumn(dest, sc.Name)
		if dc == nil {
			report.addError(sc.Name, "column missing in destination")
			continue
		}
		if sc.DataType != "" && dc.DataType != "" && !Compatible(sc.DataType, dc.DataType) {
			report.addWarning(sc.Name, "type mismatch: source %s (%s) vs destination %s (%s)",
				sc.DataType, CategoryOf(sc.DataType), dc.DataType, CategoryOf(dc.DataType))
		}
		if sc.IsNullable && !dc.IsNullable {
			report.addWarning(sc.Name, "nullable in source but NOT NULL in destination")
		}
	}

	for _, dc := range dest {
		if !seen[strings.ToLower(dc.Name)] {
			report.addWarning(dc.Name, "destination column not present in source")
		}
	}

	if targetPK != "" {
		pk := FindColumn(dest, targetPK)
		switch {
		case pk == nil:
			report.addError(targetPK, "primary key column missing in destination")
		case !pk.IsPK:
			report.addError(targetPK, "column is not the destination primary key")
		case pk.IsAutoInc:
			report.addError(targetPK, "destination primary key is auto-generated; copied keys would collide")
		}
	}

	return report
}

// FindColumn looks a column up by name, ignoring case.
func FindColumn(cols []*Column, name string) *Column {
	for _, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}
