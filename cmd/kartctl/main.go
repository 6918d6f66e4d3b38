package main

import (
	"os"

	"kartd/internal/kartctl"
)

func main() { os.Exit(kartctl.Main()) }
