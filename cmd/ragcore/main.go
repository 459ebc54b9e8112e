package main

import "ragcore/internal/cli"

func main() {
	cli.Execute()
}
