package main

import (
	"fleet-resale-pricer/internal/cli"
)

func main() {
	cli.Execute()
}
