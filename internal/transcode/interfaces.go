package transcode

import (
	"context"
)

// Transcoder defines the interface for the audio conversion service.
type Transcoder interface {
	// Transcode converts job.InputPath into job.OutputPath. onProgress receives
	// whole percentages when the input duration is known; it may be nil.
	Transcode(ctx context.Context, job Job, onProgress func(percent int)) error
}
