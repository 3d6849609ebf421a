package cmd

import (
	"fmt"
)

const banner = `
  ___                  ____          _
 |_ _|_ __ ___  _ __  / ___|___ _ __| |_
  | || '__/ _ \| '_ \| |   / _ \ '__| __|
  | || | | (_) | | | | |__|  __/ |  | |_
 |___|_|  \___/|_| |_|\____\___|_|   \__|

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Certificate Issuance Service - Version %s\x1b[0m\n\n", Version)
}
