// Command circlesync runs the sync server and its administration tools.
package main

import "github.com/roach88/circlesync/internal/cli"

func main() {
	cli.Main()
}
