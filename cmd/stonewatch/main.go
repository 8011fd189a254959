package main

import "github.com/jacobschulman/stonewatch/cmd"

func main() {
	cmd.Execute()
}
