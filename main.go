package main

import "github.com/haleyrc/workdriver/cmd"

func main() {
	cmd.Execute()
}
