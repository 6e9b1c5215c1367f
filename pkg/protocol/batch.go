package protocol

// BatchInitialization opens the NDJSON stream of a file transcription.
type BatchInitialization struct {
	Type          MessageType `json:"type"`
	Filename      string      `json:"filename"`
	FileSize      int         `json:"file_size"`
	TotalDuration float64     `json:"total_duration"`
	TotalSegments int         `json:"total_segments"`
	VADEnabled    bool        `json:"vad_enabled"`
	// MaxSegmentDuration in seconds.
	MaxSegmentDuration float64 `json:"max_segment_duration"`
	Timestamp          float64 `json:"timestamp"`
}

// SegmentInfo summarizes one planned segment before transcription.
type SegmentInfo struct {
	SegmentIndex  int     `json:"segment_index"`
	OriginalIndex int     `json:"original_index"`
	StartTime     float64 `json:"start_time"`
	EndTime       float64 `json:"end_time"`
	Duration      float64 `json:"duration"`
	IsLongSegment bool    `json:"is_long_segment"`
	// SubSegmentCount and SubSegmentIndex describe the split of a long
	// speech interval; both are 1 for ordinary segments.
	SubSegmentCount int `json:"sub_segment_count"`
	SubSegmentIndex int `json:"sub_segment_index"`
}

// BatchSegmentsSummary lists all planned segments up front.
type BatchSegmentsSummary struct {
	Type          MessageType   `json:"type"`
	Segments      []SegmentInfo `json:"segments"`
	TotalSegments int           `json:"total_segments"`
	Timestamp     float64       `json:"timestamp"`
}

// BatchSegmentResult reports one transcribed segment.
type BatchSegmentResult struct {
	Type           MessageType `json:"type"`
	SegmentIndex   int         `json:"segment_index"`
	OriginalIndex  int         `json:"original_index"`
	StartTime      float64     `json:"start_time"`
	EndTime        float64     `json:"end_time"`
	Duration       float64     `json:"duration"`
	Text           string      `json:"text"`
	ProcessingTime float64     `json:"processing_time"`
	IsLongSegment  bool        `json:"is_long_segment"`
	Timestamp      float64     `json:"timestamp"`
	// Progress is the completion percentage after this segment, one
	// decimal.
	Progress float64 `json:"progress"`
}

// BatchSegmentError reports one failed segment.
type BatchSegmentError struct {
	Type          MessageType `json:"type"`
	SegmentIndex  int         `json:"segment_index"`
	OriginalIndex int         `json:"original_index"`
	Error         string      `json:"error"`
	IsLongSegment bool        `json:"is_long_segment"`
	Timestamp     float64     `json:"timestamp"`
	Progress      float64     `json:"progress"`
}

// BatchFinalSummary closes the NDJSON stream.
type BatchFinalSummary struct {
	Type               MessageType `json:"type"`
	TotalSegments      int         `json:"total_segments"`
	SuccessfulSegments int         `json:"successful_segments"`
	FailedSegments     int         `json:"failed_segments"`
	TotalDuration      float64     `json:"total_duration"`
	ProcessingTime     float64     `json:"processing_time"`
	CompletedAt        float64     `json:"completed_at"`
	Message            string      `json:"message"`
}

// BatchResponse is the non-streaming aggregate answer.
type BatchResponse struct {
	Status         string               `json:"status"`
	Filename       string               `json:"filename"`
	FileSize       int                  `json:"file_size"`
	TotalDuration  float64              `json:"total_duration"`
	Segments       []BatchSegmentResult `json:"segments"`
	TotalSegments  int                  `json:"total_segments"`
	ProcessingTime float64              `json:"processing_time"`
}
