// Command clawdhub is the registry's command line client.
package main

import "github.com/xrey167/molthub/cli"

func main() {
	cli.Execute()
}
