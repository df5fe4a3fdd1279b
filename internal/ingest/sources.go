package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	readability "github.com/go-shiori/go-readability"
)

// fetchTimeout bounds the page download for URL ingestion.
const fetchTimeout = 30 * time.Second

// minParagraphLen drops extraction fragments too short to be a useful
// document, measured in bytes.
const minParagraphLen = 40

// ExpandGlobs resolves glob patterns (including ** recursion) to a sorted,
// de-duplicated list of files. A pattern that matches nothing is an error,
// since it almost always means a typo rather than an intentionally empty run.
func ExpandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var paths []string

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			paths = append(paths, m)
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// ReadCSV extracts documents from a CSV file: the first column of every
// record after the header row. Blank documents are skipped. Records may
// have varying field counts; columns past the first are ignored.
func ReadCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	var docs []string
	for _, record := range records[1:] {
		if len(record) == 0 {
			continue
		}
		doc := strings.TrimSpace(record[0])
		if doc == "" {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// fetchArticle downloads a page, strips it to its readable article text and
// splits that into paragraph documents.
func fetchArticle(pageURL string) ([]string, string, error) {
	article, err := readability.FromURL(pageURL, fetchTimeout)
	if err != nil {
		return nil, "", fmt.Errorf("extracting article from %s: %w", pageURL, err)
	}
	return paragraphs(article.TextContent), article.Title, nil
}

// paragraphs splits extracted text into documents. Text pulled out of HTML
// carries a line break per block element, so lines approximate paragraphs.
// Interior whitespace is collapsed and fragments shorter than
// minParagraphLen are dropped.
func paragraphs(text string) []string {
	var docs []string
	for _, line := range strings.Split(text, "\n") {
		doc := strings.Join(strings.Fields(line), " ")
		if len(doc) < minParagraphLen {
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}
