package main

import "github.com/the-dev-tools/recordsync/cmd/recordsync/cmd"

func main() {
	cmd.Execute()
}
