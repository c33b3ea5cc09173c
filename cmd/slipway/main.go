package main

import "github.com/slipway-sh/slipway/cmd/slipway/cmd"

func main() {
	cmd.Execute()
}
