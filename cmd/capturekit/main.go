package main

import "github.com/bryanchriswhite/CaptureKit/cmd/capturekit/commands"

func main() {
	commands.Execute()
}
