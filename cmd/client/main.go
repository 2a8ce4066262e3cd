// Command client is the interactive shell for the UDP file-transfer and
// directory-sync service.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nyaaorick/Assigment-UDP-Localsend/pkg/client"
)

func main() {
	var (
		configPath = flag.String("sync-config", "sync_config.json", "path to the sync pairs config file")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [host port] [flags]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	host := "127.0.0.1"
	port := 51234

	args := flag.Args()
	switch len(args) {
	case 0:
	case 2:
		host = args[0]
		var p int
		if _, err := fmt.Sscanf(args[1], "%d", &p); err != nil {
			fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", args[1], err)
			os.Exit(1)
		}
		port = p
	default:
		flag.Usage()
		os.Exit(1)
	}

	conn, err := client.Dial(host, port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to %s:%d: %v\n", host, port, err)
		os.Exit(1)
	}
	defer conn.Close()

	shell, err := client.NewShell(conn, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init shell: %v\n", err)
		os.Exit(1)
	}

	shell.Run()
}
