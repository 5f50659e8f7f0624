package main

import (
	"github.com/northwind-labs/atlas/internal/adapters/driving/cli"
)

func main() {
	cli.Execute()
}
