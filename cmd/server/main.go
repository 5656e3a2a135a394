package main

import "support360/cmd/cli"

func main() {
	cli.Execute()
}
