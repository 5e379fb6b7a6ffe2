package keys

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/pokt-rotate/internal/errors"
	"github.com/ggonzalez94/pokt-rotate/internal/pokt/signer"
)

const (
	Header = "privateKey"
	// MaxKeysPerFile bounds one input file.
	MaxKeysPerFile = 100
)

// Parse reads a private key CSV. The first line must be exactly the header;
// every following non-empty line, trimmed, is one key. The whole file is
// rejected if the header is wrong, any key has the wrong length, or there
// are more than maxKeys keys. maxKeys <= 0 means MaxKeysPerFile.
func Parse(r io.Reader, maxKeys int) ([]signer.PrivateKey, error) {
	if maxKeys <= 0 {
		maxKeys = MaxKeysPerFile
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, clierr.Wrap(clierr.CodeValidation, "read key csv", err)
		}
		return nil, clierr.New(clierr.CodeValidation, "malformed key csv: missing header")
	}
	if header := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff")); header != Header {
		return nil, clierr.New(clierr.CodeValidation, fmt.Sprintf("malformed key csv header: expected %q", Header))
	}

	var (
		keys       []signer.PrivateKey
		badLines   []int
		lineNumber = 1
	)
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(line) != signer.PrivateKeyHexLength {
			badLines = append(badLines, lineNumber)
			continue
		}
		keys = append(keys, signer.PrivateKey(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, clierr.Wrap(clierr.CodeValidation, "read key csv", err)
	}
	if len(badLines) > 0 {
		return nil, clierr.New(clierr.CodeValidation, fmt.Sprintf("invalid private key length on line(s) %s: expected %d characters", joinInts(badLines), signer.PrivateKeyHexLength))
	}
	if len(keys) > maxKeys {
		return nil, clierr.New(clierr.CodeValidation, fmt.Sprintf("too many keys (%d): avoid batch sending to more than %d at once, wait and send the rest in another run", len(keys), maxKeys))
	}
	return keys, nil
}

// Load parses the key CSV at path.
func Load(path string, maxKeys int) ([]signer.PrivateKey, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, clierr.New(clierr.CodeFileNotFound, fmt.Sprintf("could not find %s", path))
		}
		return nil, clierr.Wrap(clierr.CodeFileNotFound, fmt.Sprintf("open %s", path), err)
	}
	defer f.Close()

	keys, err := Parse(f, maxKeys)
	if err != nil {
		if cliErr, ok := clierr.As(err); ok {
			return nil, clierr.New(cliErr.Code, fmt.Sprintf("%s: %s", path, cliErr.Error()))
		}
		return nil, err
	}
	return keys, nil
}

// Encode renders keys in the input CSV format.
func Encode(keys []signer.PrivateKey) []byte {
	var buf bytes.Buffer
	buf.WriteString(Header)
	buf.WriteByte('\n')
	for _, k := range keys {
		buf.WriteString(k.Reveal())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Generate creates n fresh keys. rnd may be nil for crypto/rand.
func Generate(n int, rnd io.Reader) ([]signer.PrivateKey, error) {
	if n <= 0 {
		return nil, clierr.New(clierr.CodeUsage, "number of keys must be positive")
	}
	out := make([]signer.PrivateKey, 0, n)
	for i := 0; i < n; i++ {
		km, err := signer.CreateRandom(rnd)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeSigner, "generate key", err)
		}
		out = append(out, km.PrivateKey())
	}
	return out, nil
}

// WriteGenerated writes keys to a new timestamped file under dir and returns
// its path. Files are created with owner-only permissions.
func WriteGenerated(dir string, keys []signer.PrivateKey, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "create key directory", err)
	}
	name := fmt.Sprintf("new-app-private-keys-%s.csv", FileTimestamp(now))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "create key file", err)
	}
	if _, err := f.Write(Encode(keys)); err != nil {
		_ = f.Close()
		return "", clierr.Wrap(clierr.CodeInternal, "write key file", err)
	}
	if err := f.Close(); err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "close key file", err)
	}
	return path, nil
}

// FileTimestamp formats now as ISO-8601 with colons replaced for
// filesystem safety.
func FileTimestamp(now time.Time) string {
	return strings.ReplaceAll(now.UTC().Format("2006-01-02T15:04:05.000Z07:00"), ":", "_")
}

func joinInts(v []int) string {
	parts := make([]string, 0, len(v))
	for _, n := range v {
		parts = append(parts, fmt.Sprintf("%d", n))
	}
	return strings.Join(parts, ",")
}
