package model

// Package model defines domain data structures used across the service: download
// tasks, partial task patches, requests, formats and status enums. Patches are
// the only way task state changes, which keeps state transitions explicit.
