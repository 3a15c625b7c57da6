package main

import "mobilepilot/cmd"

func main() {
	cmd.Execute()
}
