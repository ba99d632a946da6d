package main

import (
	"os"

	"chatd/internal/testctl"
)

func main() { os.Exit(testctl.Main()) }
