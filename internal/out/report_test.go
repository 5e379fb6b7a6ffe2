package out

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/pokt-rotate/internal/execution"
)

func TestReportName(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 7, 9, 123000000, time.UTC)
	got := ReportName(execution.ActionTransfer, now)
	want := "2024-03-05T14_07_09.123Z-app_transfer-results.csv"
	if got != want {
		t.Fatalf("unexpected report name %q, want %q", got, want)
	}
}

func TestWriteReportTransferRows(t *testing.T) {
	dir := t.TempDir()
	report := execution.Report{
		Action: execution.ActionTransfer,
		Outcomes: []execution.Outcome{
			{Address: "a1", NewAddress: "x1", Response: "HASH1", Success: true},
			{Address: "b1", NewAddress: "y1", Response: "HASH2", Success: true},
			{Address: "c1", NewAddress: "z1", Response: "transfer failed after 10 attempt(s): code 1, insufficient funds", Success: false},
		},
	}
	path, err := WriteReport(dir, report, time.Now())
	if err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	if filepath.Dir(path) != dir || !strings.HasSuffix(path, "-app_transfer-results.csv") {
		t.Fatalf("unexpected report path %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	want := [][]string{
		{"oldAddress", "newAddress", "response", "success"},
		{"a1", "x1", "HASH1", "true"},
		{"b1", "y1", "HASH2", "true"},
		{"c1", "z1", "transfer failed after 10 attempt(s): code 1, insufficient funds", "false"},
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i := range want {
		if strings.Join(rows[i], "|") != strings.Join(want[i], "|") {
			t.Fatalf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestEncodeReportSingleKeyHeader(t *testing.T) {
	body, err := EncodeReport(execution.Report{
		Action:   execution.ActionUnstake,
		Outcomes: []execution.Outcome{{Address: "a1", Response: "HASH", Success: true}},
	})
	if err != nil {
		t.Fatalf("EncodeReport failed: %v", err)
	}
	if string(body) != "address,response,success\na1,HASH,true\n" {
		t.Fatalf("unexpected report body %q", string(body))
	}
}

func TestEncodeReportEmpty(t *testing.T) {
	body, err := EncodeReport(execution.Report{Action: execution.ActionStake})
	if err != nil {
		t.Fatalf("EncodeReport failed: %v", err)
	}
	if string(body) != "address,response,success\n" {
		t.Fatalf("expected header only, got %q", string(body))
	}
}
