package main

import (
	"github.com/zentria/wagate/cmd"
)

func main() {
	cmd.Execute()
}
