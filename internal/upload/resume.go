package upload

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var (
	// slog text lines written by a previous put.
	doneLine = regexp.MustCompile(`\blevel=INFO msg=("(?:[^"\\]|\\.)*")`)
	// Lines of the classic parallel-put log format.
	legacyDoneLine = regexp.MustCompile(`\AINFO:\S+\[putter-\d+\]:\S+\s+->\s+(\S+)\s*\z`)
)

// DoneKeys extracts the keys reported as uploaded in a put log.
func DoneKeys(r io.Reader, done map[string]bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		if key, ok := doneKey(sc.Text()); ok {
			done[key] = true
		}
	}
	return sc.Err()
}

func doneKey(line string) (string, bool) {
	if m := legacyDoneLine.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	m := doneLine.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	msg, err := strconv.Unquote(m[1])
	if err != nil || strings.HasPrefix(msg, "skipping ") {
		return "", false
	}
	i := strings.LastIndex(msg, " -> ")
	if i < 0 {
		return "", false
	}
	return msg[i+len(" -> "):], true
}

// LoadResume reads the done keys of every log file.
func LoadResume(paths []string) (map[string]bool, error) {
	done := make(map[string]bool)
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("opening resume log: %w", err)
		}
		err = DoneKeys(f, done)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading resume log %s: %w", p, err)
		}
	}
	return done, nil
}
