package titles

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/anicachedb/internal/domain"
)

// parseTitles reads the pipe-delimited bulk titles format: one
// "id|type|language|title" record per line, with '#' comment lines and blank
// lines skipped. Malformed lines are logged and skipped rather than failing
// the whole load.
func parseTitles(r io.Reader, log zerolog.Logger) ([]domain.TitleRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var records []domain.TitleRecord
	lineNo := 0
	skipped := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			log.Warn().Int("line", lineNo).Msg("skipping malformed title line")
			skipped++
			continue
		}

		externalID, err := strconv.Atoi(parts[0])
		if err != nil {
			log.Warn().Int("line", lineNo).Str("id", parts[0]).Msg("skipping title line with bad id")
			skipped++
			continue
		}
		titleType, err := strconv.Atoi(parts[1])
		if err != nil {
			log.Warn().Int("line", lineNo).Str("type", parts[1]).Msg("skipping title line with bad type")
			skipped++
			continue
		}

		title := strings.TrimSpace(parts[3])
		if title == "" {
			skipped++
			continue
		}

		records = append(records, domain.NewTitleRecord(externalID, titleType, parts[2], title))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading titles data")
	}

	if skipped > 0 {
		log.Info().Int("skipped", skipped).Int("parsed", len(records)).Msg("titles file parsed with skips")
	}
	return records, nil
}

// parseTitlesFile opens a gzip-compressed titles file and parses its records.
func parseTitlesFile(path string, log zerolog.Logger) ([]domain.TitleRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open titles file")
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "titles file is not valid gzip")
	}
	defer gz.Close()

	return parseTitles(gz, log)
}
