package main

import "modsync/internal/cli"

func main() {
	cli.Execute()
}
