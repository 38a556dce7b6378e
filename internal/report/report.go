// Package report renders a journey Result as a Markdown run report.
package report

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nao1215/markdown"

	"github.com/kuitang/pillbridge-verify/internal/errs"
	"github.com/kuitang/pillbridge-verify/internal/journey"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// FileName returns the report file name for a journey.
func FileName(journeyName string) string {
	return journeyName + "-report.md"
}

// Write renders res to w.
func Write(w io.Writer, res *journey.Result) error {
	if res == nil {
		return errs.New(errs.InvalidArgument, "no result to report")
	}
	md := markdown.NewMarkdown(w)

	writeHeader(md, res)
	writeOutcome(md, res)
	writeSteps(md, res)
	writeFooter(md)

	return md.Build()
}

// Render returns the report as a string.
func Render(res *journey.Result) (string, error) {
	var buf bytes.Buffer
	if err := Write(&buf, res); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteFile writes the report to dir, next to the screenshot, and returns its path.
func WriteFile(dir string, res *journey.Result) (string, error) {
	body, err := Render(res)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errs.Wrap(errs.Internal, "create report directory", err)
	}
	path := filepath.Join(dir, FileName(res.Journey))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", errs.Wrap(errs.Internal, "write report", err)
	}
	return path, nil
}

func writeHeader(md *markdown.Markdown, res *journey.Result) {
	md.H1("Journey report: " + res.Journey)
	md.PlainText("")

	screenshot := "-"
	if res.Screenshot != "" {
		screenshot = "`" + res.Screenshot + "`"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + res.RunID + "`"},
			{"Started", res.Started.UTC().Format(timeLayout)},
			{"Duration", formatDuration(res.Duration())},
			{"Steps run", strconv.Itoa(len(res.Steps))},
			{"Screenshot", screenshot},
			{"Status", statusText(res)},
		},
	})
	md.PlainText("")
}

func statusText(res *journey.Result) string {
	if res.OK() {
		return "✅ Passed"
	}
	if errs.CodeOf(res.Err) == errs.Canceled {
		return "⚠️ Canceled"
	}
	return "❌ Failed"
}

func writeOutcome(md *markdown.Markdown, res *journey.Result) {
	if res.OK() {
		md.Tip("All steps passed and the screenshot was saved.")
		md.PlainText("")
		return
	}
	if step := res.FailedStep(); step != "" {
		md.Cautionf("Step %q failed. Later steps did not run.", step)
	} else {
		md.Warning("The journey stopped before a step failed.")
	}
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlight("text"), res.Err.Error())
	md.PlainText("")
}

func writeSteps(md *markdown.Markdown, res *journey.Result) {
	md.H2("Steps")
	md.PlainText("")

	if len(res.Steps) == 0 {
		md.PlainText("No steps ran.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(res.Steps))
	for i, s := range res.Steps {
		status := "ok"
		if s.Err != nil {
			status = "**failed**"
		}
		rows[i] = []string{strconv.Itoa(i + 1), s.Name, status, formatDuration(s.Duration)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Step", "Result", "Duration"},
		Rows:   rows,
	})
	md.PlainText("")
}

func writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by pillbridge-verify*")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
	}
	return d.Round(10 * time.Millisecond).String()
}
