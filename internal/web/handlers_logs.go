package web

import (
	"bufio"
	"html"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// ansiEscape matches terminal escape sequences so a log tail renders cleanly
// as HTML even if a future handler starts emitting colorized output.
var ansiEscape = regexp.MustCompile("\x1b\\[[0-9;]*[a-zA-Z]")

type logsResponse struct {
	Page    int      `json:"page"`
	PerPage int      `json:"perPage"`
	Total   int      `json:"total"`
	Lines   []string `json:"lines"`
}

// handleLogs is `GET /api/logs?page&per_page`: a paginated tail of the log
// file, oldest-first within a page, most recent page first (spec.md §6
// "paginated log tail (ANSI -> HTML)").
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.logFile == "" {
		writeJSONOK(w, logsResponse{Page: 1, PerPage: 0, Total: 0, Lines: []string{}})
		return
	}

	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 100)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 1000 {
		perPage = 100
	}

	all, err := readLines(s.logFile)
	if err != nil {
		writeInternalError(w, "failed to read log file")
		return
	}

	total := len(all)
	// Page 1 is the most recent perPage lines, page 2 the perPage before
	// that, and so on.
	end := total - (page-1)*perPage
	if end <= 0 {
		writeJSONOK(w, logsResponse{Page: page, PerPage: perPage, Total: total, Lines: []string{}})
		return
	}
	start := end - perPage
	if start < 0 {
		start = 0
	}

	lines := make([]string, 0, end-start)
	for _, raw := range all[start:end] {
		lines = append(lines, html.EscapeString(ansiEscape.ReplaceAllString(raw, "")))
	}

	writeJSONOK(w, logsResponse{Page: page, PerPage: perPage, Total: total, Lines: lines})
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func queryInt(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
