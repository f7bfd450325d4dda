package main

import "github.com/opentdf/kas/cmd"

func main() {
	cmd.Execute()
}
