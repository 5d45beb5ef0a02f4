package main

import "github.com/iksnae/mcp-sentinel/cmd"

func main() {
	cmd.Execute()
}
