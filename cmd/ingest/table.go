package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/timmy/vidledger/internal/domain"
	"github.com/timmy/vidledger/internal/service"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

const maxErrorWidth = 80

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func renderSummary(stats *service.IngestStats) string {
	elapsed := stats.EndTime.Sub(stats.StartTime)
	if stats.EndTime.IsZero() {
		elapsed = 0
	}
	rows := [][]string{
		{"Run ID", stats.RunID},
		{"Input identifiers", strconv.Itoa(stats.TotalItems)},
		{"Skipped (already done)", strconv.Itoa(stats.SkippedItems)},
		{"Succeeded", strconv.Itoa(stats.ProcessedItems)},
		{"Degraded", strconv.Itoa(stats.DegradedItems)},
		{"Failed", strconv.Itoa(stats.FailedItems)},
		{"Checkpoints", strconv.Itoa(stats.Checkpoints)},
		{"Video-only mode", strconv.FormatBool(stats.VideoOnly)},
		{"Interrupted", strconv.FormatBool(stats.Interrupted)},
		{"Left for next run", strconv.Itoa(stats.Count(domain.ItemPending))},
		{"Elapsed", elapsed.Round(time.Second).String()},
	}
	out := renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
	if len(stats.Failures) > 0 {
		out += "\n" + renderFailures(stats.Failures)
	}
	return out
}

func renderFailures(entries []domain.ProgressEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Identifier, e.ErrorClass, strconv.Itoa(e.Attempts), clip(e.LastError, maxErrorWidth)})
	}
	return renderTable([]string{"Identifier", "Class", "Attempts", "Error"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft})
}

func renderStatus(stats *service.LedgerStats, runs []domain.IngestRun) string {
	var b strings.Builder
	updated := "never"
	if stats.JournalUpdatedAt != nil {
		updated = stats.JournalUpdatedAt.Local().Format(time.RFC3339)
	}
	rows := [][]string{
		{"Master records", strconv.Itoa(stats.Records)},
		{"Malformed entries", strconv.Itoa(stats.Malformed)},
		{"Duplicate entries", strconv.Itoa(stats.Duplicates)},
		{"With comments", fmt.Sprintf("%d (%.0f%%)", stats.WithComments, stats.CommentCoverage*100)},
		{"With transcript", fmt.Sprintf("%d (%.0f%%)", stats.WithTranscript, stats.TranscriptCoverage*100)},
		{"Journal succeeded", strconv.Itoa(stats.JournalSucceeded)},
		{"Journal failed", strconv.Itoa(stats.JournalFailed)},
		{"Journal updated", updated},
	}
	b.WriteString(renderTable([]string{"Ledger", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

	if len(stats.FailuresByClass) > 0 {
		classes := make([]string, 0, len(stats.FailuresByClass))
		for class := range stats.FailuresByClass {
			classes = append(classes, class)
		}
		sort.Strings(classes)
		rows = rows[:0]
		for _, class := range classes {
			rows = append(rows, []string{class, strconv.Itoa(stats.FailuresByClass[class])})
		}
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"Failure class", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	if len(runs) > 0 {
		rows = rows[:0]
		for _, r := range runs {
			started := ""
			if r.StartedAt != nil {
				started = r.StartedAt.Local().Format("2006-01-02 15:04")
			}
			rows = append(rows, []string{
				shortID(r.ID), started, string(r.Status),
				strconv.Itoa(r.ProcessedItems), strconv.Itoa(r.FailedItems), strconv.Itoa(r.SkippedItems),
			})
		}
		b.WriteString("\n")
		b.WriteString(renderTable(
			[]string{"Run", "Started", "Status", "Succeeded", "Failed", "Skipped"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
		))
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
