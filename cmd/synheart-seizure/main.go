package main

import "github.com/synheart/synheart-seizure/internal/cli"

func main() {
	cli.Execute()
}
