package main

import "github.com/kozaktomas/cantine/cmd"

func main() {
	cmd.Execute()
}
