package admin

import (
	"bufio"
	"os"
)

// tailLines returns up to the last n non-empty lines of the JSONL file at
// path. A missing file yields an empty result rather than an error, since
// /events/tail and /transcripts/tail are read against logs that may not
// have been created yet.
func tailLines(path string, n int) ([]string, error) {
	if n <= 0 {
		n = 100
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var all []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		all = append(all, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	if all == nil {
		all = []string{}
	}
	return all, nil
}
