package main

import "github.com/jmcleod/ironcert/cmd/ironcert/cmd"

func main() {
	cmd.Execute()
}
