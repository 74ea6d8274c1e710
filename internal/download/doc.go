package download

// Package download implements the task orchestration engine built on top of
// yt-dlp (via github.com/lrstanley/go-ytdlp): the attempt driver running
// escalating strategies, failure classification, and the service that
// schedules one worker per task and records every state change in the ledger.
