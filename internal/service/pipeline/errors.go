package pipeline

import "errors"

var (
	ErrNoFiles        = errors.New("no files submitted")
	ErrUnclassified   = errors.New("file has no usable media type")
	ErrEmptyContext   = errors.New("no content could be extracted from the submitted files")
	ErrGeneration     = errors.New("generation failed")
	ErrEmptyFeedback  = errors.New("feedback is empty")
	ErrNoConversation = errors.New("nothing to refine yet")
)
