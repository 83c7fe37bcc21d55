package main

import "autoservice/internal/cli"

func main() {
	cli.Execute()
}
