package cmd

import (
	"fmt"
	"io"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

const banner = `
  ____                                        
 |  _ \  ___   ___  _ __ _ __ ___   __ _ _ __  
 | | | |/ _ \ / _ \| '__| '_ ` + "`" + ` _ \ / _` + "`" + ` | '_ \ 
 | |_| | (_) | (_) | |  | | | | | | (_| | | | |
 |____/ \___/ \___/|_|  |_| |_| |_|\__,_|_| |_|
                                              
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Login and Password Reset Service - Version %s\x1b[0m\n\n", Version)
}
