package main

import "github.com/emrpipe/emrpipe/cmd"

func main() {
	cmd.Execute()
}
