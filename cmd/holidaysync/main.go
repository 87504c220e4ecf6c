package main

import "holidaysync/internal/cli"

func main() {
	cli.Execute()
}
