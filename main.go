package main

import "github.com/loftlabs/loft/cmd"

func main() {
	cmd.Execute()
}
