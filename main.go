package main

import "github.com/tanq16/parafetch/cmd"

func main() {
	cmd.Execute()
}
