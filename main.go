package main

import "github.com/mynul56/smart-parking-ai/internal/command"

func main() {
	command.Execute()
}
