package main

import "github.com/nicklasfrahm/remtar/cmd"

func main() {
	cmd.Execute()
}
