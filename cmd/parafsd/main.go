// Command parafsd is the parafs server: an op-management core routing
// directory/file/bytestream operations to worker pools backed by the
// dataspace/keyval/bytestream storage engine, plus fsck and migrate
// admin subcommands. Grounded on the teacher's cmd/progressdb/main.go
// (config/state/shutdown wiring) and clients/cli/cmd (cobra command
// structure).
package main

import "parafs/cmd/parafsd/cmd"

func main() {
	cmd.Execute()
}
