package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionSnapshotKey returns the cache key for the latest snapshot of an exam session
func (r *CacheKeyStruct) SessionSnapshotKey(sessionID string) string {
	return fmt.Sprintf("proctor:session:%s:snapshot", sessionID)
}

// ExamineeActiveSessionKey returns the cache key for the session an examinee is currently sitting
func (r *CacheKeyStruct) ExamineeActiveSessionKey(username string) string {
	return fmt.Sprintf("examinee:%s:active_session", username)
}

// ExamineeProfileKey returns the cache key for the latest examinee profile/progress pushed by the gateway
func (r *CacheKeyStruct) ExamineeProfileKey(username string) string {
	return fmt.Sprintf("examinee:%s:profile", username)
}

// ExamMonitorChannel returns the Redis PubSub channel name for the live proctor feed of a subject level
func (r *CacheKeyStruct) ExamMonitorChannel(subject, level string) string {
	return fmt.Sprintf("exam:%s:level:%s:monitor", subject, level)
}

var CacheKey = NewCacheKeyStruct()
