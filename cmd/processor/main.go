package main

import (
	"github.com/joeott/legal-doc-processor-sub003/internal/cli"
)

func main() {
	cli.Execute()
}
