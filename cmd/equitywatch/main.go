package main

import (
	"equitywatch/internal/cli"
)

func main() {
	cli.Execute()
}
