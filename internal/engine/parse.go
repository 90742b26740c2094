package engine

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ytgrab/ytgrab/internal/domain"
)

// progressRe matches the --newline progress format, e.g.
// "[download]  42.3% of 10.25MiB at 1.20MiB/s ETA 00:05".
var progressRe = regexp.MustCompile(
	`\[download\]\s+([\d.]+)%\s+of\s+~?\s*([\d.]+)(Ki|Mi|Gi|Ti)?B(?:\s+at\s+([\d.]+)(Ki|Mi|Gi|Ti)?B/s)?`,
)

func parseProgressLine(line string) (domain.Progress, bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return domain.Progress{}, false
	}

	percent, err := strconv.ParseFloat(m[1], 64)
	if err != nil || percent < 0 || percent > 100 {
		return domain.Progress{}, false
	}

	total := applySizeUnit(m[2], m[3])
	var rate float64
	if m[4] != "" {
		rate = applySizeUnit(m[4], m[5])
	}

	p := domain.Progress{
		Percent:    percent,
		BytesTotal: int64(total),
		Rate:       rate,
		UpdatedAt:  time.Now(),
	}
	if total > 0 {
		p.BytesDone = int64(total * percent / 100)
	}
	return p, true
}

func applySizeUnit(value, unit string) float64 {
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	switch unit {
	case "Ki":
		return n * 1024
	case "Mi":
		return n * 1024 * 1024
	case "Gi":
		return n * 1024 * 1024 * 1024
	case "Ti":
		return n * 1024 * 1024 * 1024 * 1024
	default:
		return n
	}
}

// classifyOutput maps the engine's stderr text to an error taxonomy kind.
// The substrings track the messages yt-dlp emits for each failure mode.
func classifyOutput(runErr error, output string) error {
	lower := strings.ToLower(output)

	kind := domain.ErrorKindEngineFailure
	msg := lastErrorLine(output)

	switch {
	case strings.Contains(lower, "unsupported url"),
		strings.Contains(lower, "is not a valid url"):
		kind = domain.ErrorKindInvalidSource
	case strings.Contains(lower, "requested format is not available"),
		strings.Contains(lower, "format is not available"):
		kind = domain.ErrorKindUnavailableFormat
	case strings.Contains(lower, "timed out"),
		strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "temporary failure in name resolution"),
		strings.Contains(lower, "network is unreachable"),
		strings.Contains(lower, "unable to download webpage"):
		kind = domain.ErrorKindNetworkFailure
	case strings.Contains(lower, "no space left"),
		strings.Contains(lower, "read-only file system"),
		strings.Contains(lower, "permission denied"):
		kind = domain.ErrorKindStorageFailure
	}

	if msg == "" {
		if runErr != nil {
			msg = runErr.Error()
		} else {
			msg = "engine failed"
		}
	}
	return &Error{Kind: kind, Message: msg}
}

// lastErrorLine returns the final ERROR: line from the engine output, which
// carries the most specific failure message.
func lastErrorLine(output string) string {
	var last string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "ERROR:") {
			last = strings.TrimSpace(strings.TrimPrefix(trimmed, "ERROR:"))
		}
	}
	return last
}
