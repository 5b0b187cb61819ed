package main

import (
	"github.com/sidkik/linksync/cmd"
	"github.com/sidkik/linksync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
