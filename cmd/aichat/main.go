package main

import (
	aichatcmd "github.com/ConnRefused/AI-Chat-TUI/cmd"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	aichatcmd.SetVersionInfo(version, commit)
	aichatcmd.Execute()
}
