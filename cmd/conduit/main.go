package main

import "conduit/cmd/conduit/cmd"

func main() {
	cmd.Execute()
}
