package main

import "github.com/chadmayfield/waterqd/cmd"

func main() {
	cmd.Execute()
}
