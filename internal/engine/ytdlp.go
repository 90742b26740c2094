package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ytgrab/ytgrab/internal/constants"
	"github.com/ytgrab/ytgrab/internal/domain"
)

// YTDLP drives the yt-dlp CLI as the fetch engine. One invocation per job;
// the spawned process is killed through the context on cancellation.
type YTDLP struct {
	// Binary overrides the executable name, for tests. Empty means yt-dlp.
	Binary string
}

func NewYTDLP() *YTDLP {
	return &YTDLP{}
}

func (y *YTDLP) binary() string {
	if y.Binary != "" {
		return y.Binary
	}
	return constants.EngineBinary
}

// ValidateURL rejects anything that is not an http(s) URL for a supported
// host before a job is ever created.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &Error{Kind: domain.ErrorKindInvalidSource, Message: "invalid source URL"}
	}
	host := strings.ToLower(u.Host)
	if !strings.Contains(host, "youtube.com") && !strings.Contains(host, "youtu.be") {
		return &Error{Kind: domain.ErrorKindInvalidSource, Message: "unsupported source host"}
	}
	return nil
}

// formatSelector mirrors the quality/format mapping the service exposes:
// mp3 takes the best audio stream, mp4 prefers capped-height mp4 video with
// m4a audio, falling back progressively.
func formatSelector(quality, formatType string) string {
	if formatType == constants.FormatMP3 {
		return "bestaudio/best"
	}
	q := strings.ToLower(strings.TrimSpace(quality))
	if q == "" || q == "best" {
		return "bestvideo+bestaudio/best"
	}
	height := strings.TrimSuffix(q, "p")
	for _, r := range height {
		if r < '0' || r > '9' {
			return "bestvideo+bestaudio/best"
		}
	}
	return fmt.Sprintf(
		"bestvideo[height<=%[1]s][ext=mp4]+bestaudio[ext=m4a]/bestvideo[height<=%[1]s]+bestaudio/best[height<=%[1]s]",
		height,
	)
}

func outputTemplate(customFilename string) string {
	if name := strings.TrimSpace(customFilename); name != "" {
		return name + ".%(ext)s"
	}
	return "%(title)s [%(id)s].%(ext)s"
}

// Fetch runs one download. The per-job DestDir must exist; on success the
// single file found there is returned.
func (y *YTDLP) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	args := []string{
		"--no-playlist",
		"--newline",
		"--restrict-filenames",
		"--socket-timeout", fmt.Sprintf("%d", int(constants.EngineSocketTimeout.Seconds())),
		"--retries", "3",
		"--write-info-json",
		"-P", req.DestDir,
		"-o", outputTemplate(req.CustomFilename),
		"-f", formatSelector(req.Quality, req.FormatType),
	}
	if req.MaxFileSize > 0 {
		args = append(args, "--max-filesize", fmt.Sprintf("%d", req.MaxFileSize))
	}
	switch req.FormatType {
	case constants.FormatMP3:
		args = append(args, "-x", "--audio-format", "mp3", "--audio-quality", "192K")
	default:
		args = append(args, "--merge-output-format", "mp4")
	}

	cookiesPath, cleanupCookies, err := writeCookies(req.Cookies)
	if err != nil {
		return nil, &Error{Kind: domain.ErrorKindStorageFailure, Message: fmt.Sprintf("failed to stage cookies: %v", err)}
	}
	defer cleanupCookies()
	if cookiesPath != "" {
		args = append(args, "--cookies", cookiesPath)
	}

	args = append(args, req.URL)

	output, runErr := y.run(ctx, args, req.OnProgress)
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, &Error{Kind: domain.ErrorKindCancelled, Message: "fetch cancelled"}
		}
		return nil, classifyOutput(runErr, output)
	}

	result, err := collectResult(req.DestDir)
	if err != nil {
		if strings.Contains(output, "max-filesize") {
			return nil, &Error{Kind: domain.ErrorKindStorageFailure, Message: "file exceeds the configured size limit"}
		}
		return nil, err
	}

	result.Title, result.Uploader = readSidecarInfo(req.DestDir)
	return result, nil
}

// Probe extracts metadata without downloading.
func (y *YTDLP) Probe(ctx context.Context, sourceURL, cookies string) (*domain.VideoInfo, error) {
	if err := ValidateURL(sourceURL); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, constants.ProbeTimeout)
	defer cancel()

	args := []string{"--no-playlist", "-J"}

	cookiesPath, cleanupCookies, err := writeCookies(cookies)
	if err != nil {
		return nil, &Error{Kind: domain.ErrorKindStorageFailure, Message: fmt.Sprintf("failed to stage cookies: %v", err)}
	}
	defer cleanupCookies()
	if cookiesPath != "" {
		args = append(args, "--cookies", cookiesPath)
	}

	args = append(args, sourceURL)

	cmd := exec.CommandContext(ctx, y.binary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &Error{Kind: domain.ErrorKindNetworkFailure, Message: "metadata probe timed out"}
		}
		return nil, classifyOutput(err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, &Error{Kind: domain.ErrorKindEngineFailure, Message: "engine returned empty metadata"}
	}

	return decodeInfo(stdout.Bytes())
}

func (y *YTDLP) run(ctx context.Context, args []string, onProgress func(domain.Progress)) (string, error) {
	cmd := exec.CommandContext(ctx, y.binary(), args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", &Error{Kind: domain.ErrorKindEngineFailure, Message: fmt.Sprintf("setup stdout pipe: %v", err)}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", &Error{Kind: domain.ErrorKindEngineFailure, Message: fmt.Sprintf("setup stderr pipe: %v", err)}
	}

	if err := cmd.Start(); err != nil {
		return "", &Error{Kind: domain.ErrorKindEngineFailure, Message: fmt.Sprintf("start engine: %v", err)}
	}

	var buf strings.Builder
	var mu sync.Mutex
	var wg sync.WaitGroup

	read := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			appendLimited(&buf, line)
			mu.Unlock()

			if onProgress != nil {
				if p, ok := parseProgressLine(line); ok {
					onProgress(p)
				}
			}
		}
	}

	wg.Add(2)
	go read(stdoutPipe)
	go read(stderrPipe)
	wg.Wait()

	waitErr := cmd.Wait()

	mu.Lock()
	output := buf.String()
	mu.Unlock()

	return output, waitErr
}

// collectResult locates the downloaded file in the per-job directory. The
// engine writes exactly one artifact; anything else is a failed run.
func collectResult(destDir string) (*FetchResult, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return nil, &Error{Kind: domain.ErrorKindStorageFailure, Message: fmt.Sprintf("read output directory: %v", err)}
	}

	var filePath string
	var fileSize int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		// Skip the metadata sidecar and leftover fragment files from an
		// interrupted merge.
		if strings.HasSuffix(entry.Name(), ".info.json") ||
			strings.HasSuffix(entry.Name(), ".part") ||
			strings.HasSuffix(entry.Name(), ".ytdl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > fileSize {
			filePath = filepath.Join(destDir, entry.Name())
			fileSize = info.Size()
		}
	}

	if filePath == "" {
		return nil, &Error{Kind: domain.ErrorKindEngineFailure, Message: "no file was downloaded"}
	}
	if fileSize == 0 {
		return nil, &Error{Kind: domain.ErrorKindEngineFailure, Message: "downloaded file is empty"}
	}

	return &FetchResult{FilePath: filePath, FileSize: fileSize}, nil
}

// readSidecarInfo parses the --write-info-json sidecar for the metadata
// worth carrying into the fetch result, then removes it. Best effort; a
// missing or malformed sidecar leaves the fields empty.
func readSidecarInfo(destDir string) (title, uploader string) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return "", ""
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".info.json") {
			continue
		}
		path := filepath.Join(destDir, entry.Name())
		data, err := os.ReadFile(path)
		os.Remove(path)
		if err != nil {
			return "", ""
		}

		var info struct {
			Title    string `json:"title"`
			Uploader string `json:"uploader"`
		}
		if err := json.Unmarshal(data, &info); err != nil {
			return "", ""
		}
		return info.Title, info.Uploader
	}
	return "", ""
}

func writeCookies(cookies string) (string, func(), error) {
	if strings.TrimSpace(cookies) == "" {
		return "", func() {}, nil
	}

	f, err := os.CreateTemp("", "ytgrab-cookies-*.txt")
	if err != nil {
		return "", func() {}, err
	}
	path := f.Name()
	if _, err := f.WriteString(cookies); err != nil {
		f.Close()
		os.Remove(path)
		return "", func() {}, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", func() {}, err
	}
	return path, func() { os.Remove(path) }, nil
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendLimited(buf *strings.Builder, line string) {
	const maxKeep = 8192
	if buf.Len() >= maxKeep {
		return
	}
	toWrite := line + "\n"
	if remain := maxKeep - buf.Len(); len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	buf.WriteString(toWrite)
}

// decodeInfo maps the -J dump into the probe result: top formats by height,
// truncated description.
func decodeInfo(data []byte) (*domain.VideoInfo, error) {
	var raw struct {
		ID          string  `json:"id"`
		Title       string  `json:"title"`
		Duration    float64 `json:"duration"`
		Uploader    string  `json:"uploader"`
		UploadDate  string  `json:"upload_date"`
		ViewCount   int64   `json:"view_count"`
		Thumbnail   string  `json:"thumbnail"`
		Description string  `json:"description"`
		WebpageURL  string  `json:"webpage_url"`
		Extractor   string  `json:"extractor"`
		Formats     []struct {
			FormatID string  `json:"format_id"`
			Ext      string  `json:"ext"`
			Height   int     `json:"height"`
			Width    int     `json:"width"`
			Filesize int64   `json:"filesize"`
			VCodec   string  `json:"vcodec"`
			ACodec   string  `json:"acodec"`
			FPS      float64 `json:"fps"`
		} `json:"formats"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Kind: domain.ErrorKindEngineFailure, Message: fmt.Sprintf("decode engine metadata: %v", err)}
	}

	info := &domain.VideoInfo{
		ID:          raw.ID,
		Title:       raw.Title,
		Duration:    raw.Duration,
		Uploader:    raw.Uploader,
		UploadDate:  raw.UploadDate,
		ViewCount:   raw.ViewCount,
		Thumbnail:   raw.Thumbnail,
		Description: truncateRunes(raw.Description, constants.MaxDescriptionRunes),
		WebpageURL:  raw.WebpageURL,
		Extractor:   raw.Extractor,
		Formats:     make([]domain.FormatInfo, 0, len(raw.Formats)),
	}

	for _, f := range raw.Formats {
		if f.Height == 0 || f.Ext == "" {
			continue
		}
		info.Formats = append(info.Formats, domain.FormatInfo{
			FormatID: f.FormatID,
			Ext:      f.Ext,
			Height:   f.Height,
			Width:    f.Width,
			Filesize: f.Filesize,
			VCodec:   f.VCodec,
			ACodec:   f.ACodec,
			FPS:      f.FPS,
		})
	}

	sort.SliceStable(info.Formats, func(i, j int) bool {
		return info.Formats[i].Height > info.Formats[j].Height
	})
	if len(info.Formats) > constants.MaxProbeFormats {
		info.Formats = info.Formats[:constants.MaxProbeFormats]
	}

	return info, nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
