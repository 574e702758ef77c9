package filesystem

import "time"

// Recorder receives cache events from a CachingFileSystem. category is one of
// CategoryStat, CategoryRead or CategoryWalk.
type Recorder interface {
	RecordCacheHit(category string)
	RecordCacheMiss(category string)
	RecordNegativeHit()
	RecordInnerCall(category string, duration time.Duration, err error)
	RecordDedupJoin()
	RecordFailOnMiss(category string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCacheHit(string)                        {}
func (nopRecorder) RecordCacheMiss(string)                       {}
func (nopRecorder) RecordNegativeHit()                           {}
func (nopRecorder) RecordInnerCall(string, time.Duration, error) {}
func (nopRecorder) RecordDedupJoin()                             {}
func (nopRecorder) RecordFailOnMiss(string)                      {}
