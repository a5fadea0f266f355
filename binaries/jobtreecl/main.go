package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/jobtree/jobtree/client"
	"github.com/jobtree/jobtree/common/log/hooks"
)

// CLI binary to talk to a jobtree server
//	Supported commands: (see "-h" for all options)
//		run --jid [id] [command line]
//		get [path]
//		status [jid]
//		search [value]
//		hello [timestamp|sysinfo|echoBack]
//		quit
//	Global flags:
//		--addr [<transport://host:port> of the server]
//		--log_level [<error|info|debug> level and above should be logged]

func main() {
	log.AddHook(hooks.NewContextHook())

	cl := client.NewSimpleCLIClient()
	if err := cl.Exec(); err != nil {
		os.Exit(1)
	}
}
