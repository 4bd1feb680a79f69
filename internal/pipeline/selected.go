package pipeline

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SearchReportDir is where arxiv_search writes its dated markdown reports,
// relative to the data root.
const SearchReportDir = "arxivList/md"

// DetectSelectedCount reads the "- Selected: **N**" line from the search
// report for date, or from the newest report when the dated one is missing.
// ok is false when no count could be read.
func DetectSelectedCount(dataRoot, date string) (count int, ok bool) {
	dir := filepath.Join(dataRoot, filepath.FromSlash(SearchReportDir))
	path := filepath.Join(dir, date+".md")
	if _, err := os.Stat(path); err != nil {
		path = newestReport(dir)
		if path == "" {
			return 0, false
		}
	}
	return selectedCountIn(path)
}

func newestReport(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var (
		newest string
		best   int64
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if mt := info.ModTime().UnixNano(); newest == "" || mt > best {
			newest, best = filepath.Join(dir, e.Name()), mt
		}
	}
	return newest
}

func selectedCountIn(path string) (int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "- Selected") {
			continue
		}
		parts := strings.Split(line, "**")
		if len(parts) < 2 {
			return 0, false
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
