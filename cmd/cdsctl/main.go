// cdsctl is the CLI client for a cds-node.
package main

import "github.com/nu-iot-lab/lora-mesh-cds/cmd/cdsctl/commands"

func main() {
	commands.Execute()
}
