package main

import "github.com/eventdash/authsync/cmd/authsync-replay/cmd"

func main() {
	cmd.Execute()
}
