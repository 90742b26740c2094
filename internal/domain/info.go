package domain

// VideoInfo is the metadata probe result for a source URL, returned without
// creating a job.
type VideoInfo struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Duration    float64       `json:"duration,omitempty"`
	Uploader    string        `json:"uploader,omitempty"`
	UploadDate  string        `json:"upload_date,omitempty"`
	ViewCount   int64         `json:"view_count,omitempty"`
	Thumbnail   string        `json:"thumbnail,omitempty"`
	Description string        `json:"description,omitempty"`
	WebpageURL  string        `json:"webpage_url,omitempty"`
	Extractor   string        `json:"extractor,omitempty"`
	Formats     []FormatInfo  `json:"formats"`
}

// FormatInfo describes one downloadable format of a source.
type FormatInfo struct {
	FormatID string  `json:"format_id"`
	Ext      string  `json:"ext"`
	Height   int     `json:"height,omitempty"`
	Width    int     `json:"width,omitempty"`
	Filesize int64   `json:"filesize,omitempty"`
	VCodec   string  `json:"vcodec,omitempty"`
	ACodec   string  `json:"acodec,omitempty"`
	FPS      float64 `json:"fps,omitempty"`
}
