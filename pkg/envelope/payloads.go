// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

package envelope

// IndexingOptions tunes chunking for a single document.
type IndexingOptions struct {
	ChunkSize         int  `json:"chunk_size,omitempty"`
	ChunkOverlap      int  `json:"chunk_overlap,omitempty"`
	SkipEmbedding     bool `json:"skip_embedding,omitempty"`
	SkipEntities      bool `json:"skip_entities,omitempty"`
	SkipQualityCheck  bool `json:"skip_quality_check,omitempty"`
	SkipMetadataStamp bool `json:"skip_metadata_stamp,omitempty"`
	SkipGraphUpsert   bool `json:"skip_graph_upsert,omitempty"`
	PointerOnlyIntake bool `json:"pointer_only_intake,omitempty"`
}

// DocumentIndexRequest asks the indexer to process a single document.
// Content may be nil for pointer-only requests.
type DocumentIndexRequest struct {
	SourcePath      string          `json:"source_path"`
	Content         *string         `json:"content"`
	Language        string          `json:"language"`
	ProjectID       string          `json:"project_id,omitempty"`
	RepositoryURL   string          `json:"repository_url,omitempty"`
	CommitSHA       string          `json:"commit_sha,omitempty"`
	IndexingOptions IndexingOptions `json:"indexing_options"`
	UserID          string          `json:"user_id,omitempty"`
}

// DocumentIndexCompleted carries the aggregate counters of a successful
// (possibly degraded) indexing run.
type DocumentIndexCompleted struct {
	DocumentHash         string            `json:"document_hash"`
	EntityIDs            []string          `json:"entity_ids"`
	VectorIDs            []string          `json:"vector_ids"`
	EntitiesExtracted    int               `json:"entities_extracted"`
	RelationshipsCreated int               `json:"relationships_created"`
	ChunksIndexed        int               `json:"chunks_indexed"`
	ProcessingTimeMS     int64             `json:"processing_time_ms"`
	ServiceTimings       map[string]int64  `json:"service_timings"`
	QualityScore         *float64          `json:"quality_score,omitempty"`
	OnexCompliance       *float64          `json:"onex_compliance,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	CacheHit             bool              `json:"cache_hit"`
	FailedService        string            `json:"failed_service,omitempty"`
	PartialResults       map[string]any    `json:"partial_results,omitempty"`
}

// DocumentIndexFailed is the terminal failure event for one request.
type DocumentIndexFailed struct {
	ErrorMessage     string         `json:"error_message"`
	ErrorCode        ErrorCode      `json:"error_code"`
	RetryAllowed     bool           `json:"retry_allowed"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
	FailedService    string         `json:"failed_service,omitempty"`
	PartialResults   map[string]any `json:"partial_results,omitempty"`
	ErrorDetails     string         `json:"error_details,omitempty"`
}

// RepositoryScanRequest asks the crawler to walk a repository root.
type RepositoryScanRequest struct {
	RepositoryPath  string   `json:"repository_path"`
	ProjectName     string   `json:"project_name"`
	FilePatterns    []string `json:"file_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	BatchSize       int      `json:"batch_size,omitempty"`
}

// FileSummary is one discovered file in a scan completion event.
type FileSummary struct {
	RelativePath string `json:"relative_path"`
	Language     string `json:"language"`
	SizeBytes    int64  `json:"size_bytes"`
}

// RepositoryScanCompleted carries the crawl counters.
type RepositoryScanCompleted struct {
	FilesDiscovered int           `json:"files_discovered"`
	FilesPublished  int           `json:"files_published"`
	FilesSkipped    int           `json:"files_skipped"`
	BatchesCreated  int           `json:"batches_created"`
	FileSummaries   []FileSummary `json:"file_summaries"`
}

// RepositoryScanFailed is the terminal failure event for one scan.
type RepositoryScanFailed struct {
	ErrorCode    ErrorCode `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
	RetryAllowed bool      `json:"retry_allowed"`
}

// DocumentIndexed is the optional post-write event emitted by the
// context-item writer.
type DocumentIndexed struct {
	SourceRef    string `json:"source_ref"`
	CrawlScope   string `json:"crawl_scope"`
	ItemsCreated int    `json:"items_created"`
	ItemsUpdated int    `json:"items_updated"`
	ItemsSkipped int    `json:"items_skipped"`
	ItemsFailed  int    `json:"items_failed"`
	TotalChunks  int    `json:"total_chunks"`
}
