// Command ingestpipe is the catalog ingestion rule engine's CLI entry
// point.
package main

import "github.com/catalogforge/ingestpipe/cmd/ingestpipe/cmd"

func main() {
	cmd.Execute()
}
