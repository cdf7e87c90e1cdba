package service

import "github.com/servicegraph/ruleloader/graphdb"

// UploadRequest defines inputs for one upload run.
type UploadRequest struct {
	DataURL         string
	IndexName       string
	Dimension       int
	VectorBatchSize int
	GraphBatchSize  int
	Logf            func(format string, args ...any)
}

// UploadStats summarizes a completed upload.
type UploadStats struct {
	Records       int
	VectorBatches int
	Nodes         int
	Edges         int
}

// VerifyRequest defines inputs for the verification report.
type VerifyRequest struct {
	Logf func(format string, args ...any)
}

// VerifyReport carries read-only store counts.
type VerifyReport struct {
	VectorCount   uint32
	Dimension     int32
	Nodes         int64
	Relationships int64
	TopTypes      []graphdb.TypeCount
}
