package main

import (
	"os"

	"github.com/tphakala/birda/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
