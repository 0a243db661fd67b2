package core

import "time"

// ========== 转录与分块 ==========

// Segment is one time-aligned piece of text returned by the speech-to-text service.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// NumberNA marks a lecture whose title carries no numeric prefix.
const NumberNA = "NA"

// TranscriptChunk is one timestamped segment of lecture speech as written to the
// intermediate chunk file.
type TranscriptChunk struct {
	Number string  `json:"number"`
	Title  string  `json:"title"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Text   string  `json:"text"`
}

// ChunkFile is the on-disk shape of a lecture's intermediate transcript.
type ChunkFile struct {
	Chunks []TranscriptChunk `json:"chunks"`
}

// ========== 向量存储 ==========

// VectorMetadata holds everything needed to rebuild a TranscriptChunk from a stored vector.
type VectorMetadata struct {
	Title   string  `json:"title"`
	ChunkID string  `json:"chunk_id"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Number  string  `json:"number"`
}

// IndexedVector is a stored embedding record.
type IndexedVector struct {
	ID        string         `json:"id"`
	Text      string         `json:"document"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  VectorMetadata `json:"metadata"`
}

// Chunk rebuilds the transcript chunk a vector was created from.
func (v IndexedVector) Chunk() TranscriptChunk {
	return TranscriptChunk{
		Number: v.Metadata.Number,
		Title:  v.Metadata.Title,
		Start:  v.Metadata.Start,
		End:    v.Metadata.End,
		Text:   v.Text,
	}
}

// Hit is one similarity-query result. Higher Score is closer.
type Hit struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text"`
	Metadata VectorMetadata `json:"metadata"`
}

// ========== 问答与摘要 ==========

// Location is the canonical jump-to point inside a lecture.
type Location struct {
	Title string  `json:"title"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Answer is a grounded answer plus the chunks it was built from.
type Answer struct {
	Question string   `json:"question"`
	Lecture  string   `json:"lecture,omitempty"`
	Text     string   `json:"answer"`
	Best     Location `json:"best"`
	Sources  []Hit    `json:"sources"`
}

// SummaryPart is one of the two lecture summaries; Available is false when its
// completion request failed.
type SummaryPart struct {
	Available bool   `json:"available"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
}

// LectureSummary carries the quick digest and the long-form study guide.
type LectureSummary struct {
	Title  string      `json:"title"`
	Chunks int         `json:"chunks"`
	Quick  SummaryPart `json:"quick"`
	Full   SummaryPart `json:"full"`
}

// ========== 讲座生命周期 ==========

// Media kinds reported for a lecture.
const (
	MediaVideo = "video"
	MediaAudio = "audio"
	MediaNone  = "none"
)

// LectureInfo describes one indexed lecture.
type LectureInfo struct {
	Title  string `json:"title"`
	Number string `json:"number"`
	Chunks int    `json:"chunks"`
	Media  string `json:"media"`
}

// Step records one pipeline stage of an ingestion.
type Step struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"` // "completed", "failed", "skipped"
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// IngestResult is returned by a successful ingestion or reindex.
type IngestResult struct {
	Title    string        `json:"title"`
	Number   string        `json:"number"`
	Chunks   int           `json:"chunks"`
	Indexed  int           `json:"indexed"`
	JSONPath string        `json:"json_path"`
	Steps    []Step        `json:"steps,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// DeleteResult reports what a delete removed. Deleting an absent lecture
// yields zero values.
type DeleteResult struct {
	Title   string   `json:"title"`
	Vectors int      `json:"vectors"`
	Files   []string `json:"files"`
}
