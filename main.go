// The main package for the notion-ingest executable.
package main

import (
	"github.com/jaehyun-p/notion-ingest/cmd"
)

func main() {
	cmd.Execute()
}
