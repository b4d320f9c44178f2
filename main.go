package main

import (
	"github.com/overmindtech/cloudmeta/cmd"
	_ "go.uber.org/automaxprocs"
)

func main() {
	cmd.Execute()
}
