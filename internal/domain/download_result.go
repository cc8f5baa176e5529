package domain

// StartResult represents the outcome of a start request
type StartResult struct {
	// ID is the download identifier (the target file name)
	ID string

	// AlreadyComplete is set when the final file already existed and no stream was opened
	AlreadyComplete bool

	// Resumed indicates whether the stream continues a partial file
	Resumed bool

	// ResumedFrom is the byte position the stream starts at
	ResumedFrom int64

	// TotalBytes is the announced size, or UnknownSize
	TotalBytes int64
}

// DownloadResult represents the result of a finished stream
type DownloadResult struct {
	// FinalPath is the local path where the file was saved
	FinalPath string

	// BytesWritten is the total size on disk, including the resumed prefix
	BytesWritten int64

	// Resumed indicates whether the download was resumed from a previous attempt
	Resumed bool

	// ResumedFrom is the byte position from which the download was resumed
	ResumedFrom int64
}
