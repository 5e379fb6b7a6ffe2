package app

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ggonzalez94/pokt-rotate/internal/keys"
	"github.com/ggonzalez94/pokt-rotate/internal/pokt/provider"
	"github.com/ggonzalez94/pokt-rotate/internal/pokt/signer"
	"github.com/ggonzalez94/pokt-rotate/internal/prompt"
)

type testEnv struct {
	inputDir  string
	outputDir string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	tmp := t.TempDir()
	env := testEnv{inputDir: filepath.Join(tmp, "input"), outputDir: filepath.Join(tmp, "output")}
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(tmp, "state"))
	t.Setenv("POKT_ROTATE_INPUT_DIR", env.inputDir)
	t.Setenv("POKT_ROTATE_OUTPUT_DIR", env.outputDir)
	t.Setenv("POKT_ROTATE_OUTPUT", "")
	t.Setenv("chainId", "")
	t.Setenv("POKT_ROTATE_CHAIN_ID", "")
	if err := os.MkdirAll(env.inputDir, 0o755); err != nil {
		t.Fatalf("create input dir: %v", err)
	}
	return env
}

func testKeys(t *testing.T, n int, seed byte) []signer.PrivateKey {
	t.Helper()
	buf := make([]byte, 0, n*32)
	for i := 0; i < n; i++ {
		buf = append(buf, bytes.Repeat([]byte{seed + byte(i)}, 32)...)
	}
	out, err := keys.Generate(n, bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	return out
}

func writeKeyFile(t *testing.T, dir, name string, ks []signer.PrivateKey) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), keys.Encode(ks), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
}

func addressOf(t *testing.T, k signer.PrivateKey) string {
	t.Helper()
	addr, err := signer.ResolveAddress(k)
	if err != nil {
		t.Fatalf("resolve address: %v", err)
	}
	return addr
}

// fakeRPC answers the subset of the POKT RPC the CLI uses.
type fakeRPC struct {
	mu     sync.Mutex
	hits   int
	sends  map[string]int
	fail   map[string]bool
	status map[string]int
}

func newFakeRPC(t *testing.T) (*fakeRPC, *httptest.Server) {
	t.Helper()
	f := &fakeRPC{sends: map[string]int{}, fail: map[string]bool{}, status: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeRPC) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits++
	var req map[string]any
	_ = json.NewDecoder(r.Body).Decode(&req)
	address, _ := req["address"].(string)

	switch r.URL.Path {
	case "/v1/query/height":
		_, _ = w.Write([]byte(`{"height":1000}`))
	case "/v1/client/rawtx":
		f.sends[address]++
		if f.fail[address] {
			_, _ = w.Write([]byte(`{"txhash":"","code":10,"raw_log":"insufficient funds"}`))
			return
		}
		_, _ = w.Write([]byte(`{"txhash":"HASH` + address[:8] + `","code":0}`))
	case "/v1/query/app":
		status, ok := f.status[address]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":400,"message":"application not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(provider.App{Address: address, Status: status})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeRPC) hitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("pokt-rotate runs list"); got != "runs list" {
		t.Fatalf("unexpected trim result: %s", got)
	}
}

func TestRunnerVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := NewRunnerWithIO(strings.NewReader(""), &stdout, &stderr).Run([]string{"version"})
	if code != 0 || strings.TrimSpace(stdout.String()) == "" {
		t.Fatalf("expected version output, got code=%d stdout=%q stderr=%q", code, stdout.String(), stderr.String())
	}
}

func TestRunnerDeclinedConfirmationSubmitsNothing(t *testing.T) {
	env := newTestEnv(t)
	writeKeyFile(t, env.inputDir, "old-app-private-keys.csv", testKeys(t, 3, 1))
	writeKeyFile(t, env.inputDir, "new-app-private-keys.csv", testKeys(t, 3, 101))
	rpc, srv := newFakeRPC(t)

	asker := &prompt.Scripted{Answers: []string{srv.URL, "n"}}
	var stdout, stderr bytes.Buffer
	code := NewRunnerWithIO(strings.NewReader(""), &stdout, &stderr).WithAsker(asker).Run([]string{"transfer"})

	if code != 23 {
		t.Fatalf("expected abort exit 23, got %d stderr=%s", code, stderr.String())
	}
	if len(asker.Questions) != 2 {
		t.Fatalf("expected url and confirmation prompts, got %v", asker.Questions)
	}
	if !strings.Contains(stdout.String(), "App stakes count being rotated: 3") {
		t.Fatalf("expected summary before confirmation, got %q", stdout.String())
	}
	if rpc.hitCount() != 0 {
		t.Fatalf("expected no provider traffic, got %d requests", rpc.hitCount())
	}
	if _, err := os.Stat(env.outputDir); !os.IsNotExist(err) {
		t.Fatalf("expected no report output, stat err=%v", err)
	}
}

func TestRunnerTransferPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("POKT_ROTATE_BATCH_SIZE", "2")
	oldKeys := testKeys(t, 3, 1)
	newKeys := testKeys(t, 3, 101)
	writeKeyFile(t, env.inputDir, "old-app-private-keys.csv", oldKeys)
	writeKeyFile(t, env.inputDir, "new-app-private-keys.csv", newKeys)
	rpc, srv := newFakeRPC(t)
	failing := addressOf(t, oldKeys[2])
	rpc.fail[failing] = true

	var stdout, stderr bytes.Buffer
	asker := &prompt.Scripted{Answers: []string{srv.URL, "yes"}}
	code := NewRunnerWithIO(strings.NewReader(""), &stdout, &stderr).WithAsker(asker).Run([]string{"transfer"})
	if code != 24 {
		t.Fatalf("expected submission exit 24, got %d stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "try running the script again") {
		t.Fatalf("expected rerun hint, got %s", stderr.String())
	}
	if rpc.sends[failing] != 10 {
		t.Fatalf("expected 10 attempts for the failing app, got %d", rpc.sends[failing])
	}

	matches, _ := filepath.Glob(filepath.Join(env.outputDir, "*-app_transfer-results.csv"))
	if len(matches) != 1 {
		t.Fatalf("expected one report, got %v", matches)
	}
	body, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	if err != nil {
		t.Fatalf("parse report: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(rows))
	}
	for i := 0; i < 3; i++ {
		row := rows[i+1]
		if row[0] != addressOf(t, oldKeys[i]) || row[1] != addressOf(t, newKeys[i]) {
			t.Fatalf("row %d out of order: %v", i, row)
		}
		wantSuccess := "true"
		if i == 2 {
			wantSuccess = "false"
		}
		if row[3] != wantSuccess {
			t.Fatalf("row %d: expected success=%s, got %v", i, wantSuccess, row)
		}
	}

	everything := stdout.String() + stderr.String() + string(body)
	for _, k := range append(oldKeys, newKeys...) {
		if strings.Contains(everything, k.Reveal()) {
			t.Fatal("private key leaked into output")
		}
	}

	t.Setenv("POKT_ROTATE_OUTPUT", "json")
	stdout.Reset()
	stderr.Reset()
	code = NewRunnerWithIO(strings.NewReader(""), &stdout, &stderr).Run([]string{"runs", "list", "--action", "transfer"})
	if code != 0 {
		t.Fatalf("runs list failed: code=%d stderr=%s", code, stderr.String())
	}
	var listed struct {
		Data []struct {
			Action string `json:"action"`
			Total  int    `json:"total"`
			Failed int    `json:"failed"`
		} `json:"data"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &listed); err != nil {
		t.Fatalf("decode runs list: %v output=%s", err, stdout.String())
	}
	if len(listed.Data) != 1 || listed.Data[0].Total != 3 || listed.Data[0].Failed != 1 {
		t.Fatalf("unexpected run history %+v", listed.Data)
	}
}

func TestRunnerUnstakeSuccess(t *testing.T) {
	env := newTestEnv(t)
	writeKeyFile(t, env.inputDir, "unstake-app-private-keys.csv", testKeys(t, 2, 50))
	_, srv := newFakeRPC(t)

	var stdout, stderr bytes.Buffer
	asker := &prompt.Scripted{Answers: []string{srv.URL, "Y"}}
	code := NewRunnerWithIO(strings.NewReader(""), &stdout, &stderr).WithAsker(asker).Run([]string{"unstake"})
	if code != 0 {
		t.Fatalf("expected success, got %d stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "App stakes successfully unstaked") {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
	matches, _ := filepath.Glob(filepath.Join(env.outputDir, "*-app_unstake-results.csv"))
	if len(matches) != 1 {
		t.Fatalf("expected one unstake report, got %v", matches)
	}
}

func TestRunnerStakeRequiresConfiguration(t *testing.T) {
	newTestEnv(t)
	var stdout, stderr bytes.Buffer
	asker := &prompt.Scripted{}
	code := NewRunnerWithIO(strings.NewReader(""), &stdout, &stderr).WithAsker(asker).Run([]string{"stake"})
	if code != 2 {
		t.Fatalf("expected usage exit 2, got %d", code)
	}
	if len(asker.Questions) != 0 {
		t.Fatalf("expected no prompts, got %v", asker.Questions)
	}
}

func TestRunnerCountMismatch(t *testing.T) {
	env := newTestEnv(t)
	writeKeyFile(t, env.inputDir, "old-app-private-keys.csv", testKeys(t, 2, 1))
	writeKeyFile(t, env.inputDir, "new-app-private-keys.csv", testKeys(t, 3, 101))

	var stdout, stderr bytes.Buffer
	asker := &prompt.Scripted{Answers: []string{"http://127.0.0.1:1", "yes"}}
	code := NewRunnerWithIO(strings.NewReader(""), &stdout, &stderr).WithAsker(asker).Run([]string{"transfer"})
	if code != 22 {
		t.Fatalf("expected count mismatch exit 22, got %d stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "2 old app stakes does not match the replacement of 3 new app stakes") {
		t.Fatalf("unexpected error output %s", stderr.String())
	}
	if len(asker.Questions) != 1 {
		t.Fatalf("expected to stop before confirmation, got %v", asker.Questions)
	}
}

func TestRunnerMissingAndMalformedKeyFiles(t *testing.T) {
	env := newTestEnv(t)
	var stdout, stderr bytes.Buffer
	code := NewRunnerWithIO(strings.NewReader(""), &stdout, &stderr).
		WithAsker(&prompt.Scripted{Answers: []string{"http://127.0.0.1:1"}}).
		Run([]string{"transfer"})
	if code != 21 {
		t.Fatalf("expected file not found exit 21, got %d", code)
	}

	if err := os.WriteFile(filepath.Join(env.inputDir, "unstake-app-private-keys.csv"), []byte("key\nabc\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	code = NewRunnerWithIO(strings.NewReader(""), &stdout, &stderr).
		WithAsker(&prompt.Scripted{Answers: []string{"http://127.0.0.1:1"}}).
		Run([]string{"unstake"})
	if code != 20 {
		t.Fatalf("expected validation exit 20, got %d", code)
	}
}

func TestRunnerReadsPromptsFromStdin(t *testing.T) {
	env := newTestEnv(t)
	writeKeyFile(t, env.inputDir, "unstake-app-private-keys.csv", testKeys(t, 1, 9))
	rpc, srv := newFakeRPC(t)

	var stdout, stderr bytes.Buffer
	stdin := strings.NewReader(srv.URL + "\nno\n")
	code := NewRunnerWithIO(stdin, &stdout, &stderr).Run([]string{"unstake"})
	if code != 23 {
		t.Fatalf("expected abort exit 23, got %d stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), rpcURLQuestion) || !strings.Contains(stdout.String(), confirmQuestion) {
		t.Fatalf("expected prompts on stdout, got %q", stdout.String())
	}
	if rpc.hitCount() != 0 {
		t.Fatal("expected no provider traffic after decline")
	}
}

func TestRunnerGenerate(t *testing.T) {
	env := newTestEnv(t)
	var stdout, stderr bytes.Buffer
	code := NewRunnerWithIO(strings.NewReader(""), &stdout, &stderr).
		WithAsker(&prompt.Scripted{Answers: []string{"4"}}).
		Run([]string{"generate"})
	if code != 0 {
		t.Fatalf("expected success, got %d stderr=%s", code, stderr.String())
	}
	matches, _ := filepath.Glob(filepath.Join(env.inputDir, "new-app-private-keys-*.csv"))
	if len(matches) != 1 {
		t.Fatalf("expected one generated key file, got %v", matches)
	}
	generated, err := keys.Load(matches[0], 0)
	if err != nil {
		t.Fatalf("generated file does not parse: %v", err)
	}
	if len(generated) != 4 {
		t.Fatalf("expected 4 keys, got %d", len(generated))
	}
	if strings.Contains(stdout.String(), generated[0].Reveal()) {
		t.Fatal("generated key printed to stdout")
	}

	code = NewRunnerWithIO(strings.NewReader(""), &stdout, &stderr).
		WithAsker(&prompt.Scripted{Answers: []string{"many"}}).
		Run([]string{"generate"})
	if code != 20 {
		t.Fatalf("expected validation exit 20 for a bad count, got %d", code)
	}
}

func TestRunnerVerify(t *testing.T) {
	env := newTestEnv(t)
	newKeys := testKeys(t, 2, 101)
	writeKeyFile(t, env.inputDir, "new-app-private-keys.csv", newKeys)
	rpc, srv := newFakeRPC(t)
	rpc.status[addressOf(t, newKeys[0])] = provider.StatusStaked
	rpc.status[addressOf(t, newKeys[1])] = provider.StatusStaked

	var stdout, stderr bytes.Buffer
	code := NewRunnerWithIO(strings.NewReader(""), &stdout, &stderr).
		WithAsker(&prompt.Scripted{Answers: []string{srv.URL}}).
		Run([]string{"verify"})
	if code != 0 {
		t.Fatalf("expected verified, got %d stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "All 2 new app stakes are verified staked into the network.") {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}

	rpc.mu.Lock()
	delete(rpc.status, addressOf(t, newKeys[1]))
	rpc.mu.Unlock()
	stdout.Reset()
	code = NewRunnerWithIO(strings.NewReader(""), &stdout, &stderr).
		WithAsker(&prompt.Scripted{Answers: []string{srv.URL}}).
		Run([]string{"verify"})
	if code != 25 {
		t.Fatalf("expected query exit 25, got %d", code)
	}
	if !strings.Contains(stdout.String(), "App: "+addressOf(t, newKeys[1])+" cannot be found.") {
		t.Fatalf("expected missing app line, got %q", stdout.String())
	}
}
