package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/k0kubun/go-ansi"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/jaki95/podsplit/internal/processor"
	"github.com/jaki95/podsplit/internal/progress"
)

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type progressBar struct {
	bar *progressbar.ProgressBar
}

func newProgressBar() *progressBar {
	return &progressBar{
		bar: progressbar.NewOptions(
			100,
			progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionFullWidth(),
			progressbar.OptionSetDescription("[cyan][initializing][reset] Starting..."),
		),
	}
}

// update draws event. Extraction fills the part of the bar above the
// progress the splitting stage started at.
func (p *progressBar) update(event progress.Event) {
	if event.Stage == progress.StageError {
		return
	}

	percent, message := event.Progress, event.Message
	if t := event.Track; t != nil && event.Stage == progress.StageSplitting && t.Total > 0 {
		percent += (100 - percent) * float64(t.Processed) / float64(t.Total)
		message = fmt.Sprintf("%d/%d %s", t.Processed, t.Total, t.Title)
	}

	p.bar.Describe(fmt.Sprintf("[cyan][%s][reset] %s", event.Stage, message))
	_ = p.bar.Set(int(percent))
}

func (p *progressBar) finish() {
	_ = p.bar.Exit()
	fmt.Fprintln(ansi.NewAnsiStdout())
}

// writeJSON encodes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderSummary(report *processor.Report) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(report.Title)

	tw.AppendHeader(table.Row{"#", "Start", "End", "Title", "Captions", "File"})
	for _, res := range report.Tracks {
		end := ""
		if res.End != nil {
			end = res.End.String()
		}
		captions := "missing"
		if res.CaptionPath != "" {
			captions = strconv.Itoa(res.Lines) + " lines"
		}
		file := filepath.Base(res.OutputPath)
		if !res.Extracted {
			file = "-"
		}
		tw.AppendRow(table.Row{res.Number, res.Start.String(), end, res.Title, captions, file})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}
