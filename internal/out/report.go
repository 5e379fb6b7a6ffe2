package out

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	clierr "github.com/ggonzalez94/pokt-rotate/internal/errors"
	"github.com/ggonzalez94/pokt-rotate/internal/execution"
	"github.com/ggonzalez94/pokt-rotate/internal/keys"
	"github.com/gofrs/flock"
)

const lockName = ".pokt-rotate-report.lock"

var (
	singleHeader = []string{"address", "response", "success"}
	pairHeader   = []string{"oldAddress", "newAddress", "response", "success"}
)

// ReportName is the file name for a report of action written at now.
func ReportName(action execution.ActionKind, now time.Time) string {
	return fmt.Sprintf("%s-app_%s-results.csv", keys.FileTimestamp(now), action)
}

// EncodeReport renders the outcomes as CSV, one row per outcome in order.
func EncodeReport(report execution.Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := singleHeader
	if report.Action.Paired() {
		header = pairHeader
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, o := range report.Outcomes {
		success := strconv.FormatBool(o.Success)
		row := []string{o.Address, o.Response, success}
		if report.Action.Paired() {
			row = []string{o.Address, o.NewAddress, o.Response, success}
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteReport writes the report into dir and returns its path. The file is
// written once, after the document is complete.
func WriteReport(dir string, report execution.Report, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "create report directory", err)
	}
	body, err := EncodeReport(report)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "encode report", err)
	}

	lock := flock.New(filepath.Join(dir, lockName))
	locked, err := lock.TryLockContext(context.Background(), 100*time.Millisecond)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "lock report directory", err)
	}
	if !locked {
		return "", clierr.New(clierr.CodeInternal, "lock report directory: timeout acquiring lock")
	}
	defer func() { _ = lock.Unlock() }()

	path := filepath.Join(dir, ReportName(report.Action, now))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "write report", err)
	}
	return path, nil
}
