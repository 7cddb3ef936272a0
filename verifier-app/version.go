package main

// Set at build time via -ldflags "-X main.Version=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
