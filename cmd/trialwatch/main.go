package main

import "github.com/ppiankov/trialwatch/internal/cli"

func main() {
	cli.Execute()
}
