package platform

// Package platform contains host integration and external tooling glue:
// filesystem helpers for the output directory, the ffmpeg capability probe,
// and the yt-dlp adapter (via github.com/lrstanley/go-ytdlp).
