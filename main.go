package main

import (
	"Bt1QPlayer/cmd"
)

func main() {
	cmd.Execute()
}
