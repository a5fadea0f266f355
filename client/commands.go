package client

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobtree/jobtree/protocol"
)

type runCmd struct {
	jid       string
	auid      string
	threaded  bool
	timeout   time.Duration
	container string
}

func (c *runCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "run [command line]",
		Short: "run a command line as a job",
	}
	r.Flags().StringVar(&c.jid, "jid", "", "job id to file the job under (required)")
	r.Flags().StringVar(&c.auid, "auid", "", "submitting user")
	r.Flags().BoolVar(&c.threaded, "threaded", false, "return as soon as the job is recorded")
	r.Flags().DurationVar(&c.timeout, "statement_timeout", 0, "kill any statement running longer than this")
	r.Flags().StringVar(&c.container, "container_service", "", "container service whose state decides the job's status")
	return r
}

func (c *runCmd) run(cl *simpleCLIClient, cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("a command line must be provided")
	}
	if c.jid == "" {
		return errors.New("--jid must be provided")
	}
	meta := map[string]interface{}{
		"cmd":      strings.Join(args, " "),
		"jid":      c.jid,
		"auid":     c.auid,
		"threaded": c.threaded,
	}
	if c.timeout > 0 {
		meta["timeout"] = c.timeout.Seconds()
	}
	if c.container != "" {
		meta["container"] = map[string]interface{}{"service": c.container}
	}
	_, err := cl.do(protocol.VerbPost, protocol.ActionRun, meta)
	return err
}

type getCmd struct{}

func (c *getCmd) registerFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "get [path]",
		Short: "print a leaf or subtree of the job tree",
	}
}

func (c *getCmd) run(cl *simpleCLIClient, cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("exactly one path must be provided")
	}
	client, err := cl.dial()
	if err != nil {
		return err
	}
	resp, err := client.Get(args[0])
	if err != nil {
		return err
	}
	return cl.print(resp)
}

// matchCmd is shared by the commands that select jobs by a key/value pair.
type matchCmd struct {
	use    string
	short  string
	action protocol.Action
	key    string
	path   string
}

func (c *matchCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   c.use + " [value]",
		Short: c.short,
	}
	r.Flags().StringVar(&c.key, "key", "jid", "job leaf to match on")
	if c.action == protocol.ActionSearch {
		r.Flags().StringVar(&c.path, "path", "", "node whose children are searched")
	}
	return r
}

func (c *matchCmd) run(cl *simpleCLIClient, cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("a value to match must be provided")
	}
	meta := map[string]interface{}{"key": c.key, "value": args[0]}
	if c.path != "" {
		meta["path"] = c.path
	}
	_, err := cl.do(protocol.VerbGet, c.action, meta)
	return err
}

type statusCmd struct{ matchCmd }

func (c *statusCmd) registerFlags() *cobra.Command {
	c.matchCmd = matchCmd{use: "status", short: "print the status of the latest matching job", action: protocol.ActionStatus}
	return c.matchCmd.registerFlags()
}

type searchCmd struct{ matchCmd }

func (c *searchCmd) registerFlags() *cobra.Command {
	c.matchCmd = matchCmd{use: "search", short: "list the jobs whose key leaf matches", action: protocol.ActionSearch}
	return c.matchCmd.registerFlags()
}

type helloCmd struct{}

func (c *helloCmd) registerFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "hello [timestamp|sysinfo|echoBack]",
		Short: "check the server is answering",
	}
}

func (c *helloCmd) run(cl *simpleCLIClient, cmd *cobra.Command, args []string) error {
	ask := protocol.AskTimestamp
	if len(args) > 0 {
		ask = args[0]
	}
	_, err := cl.do(protocol.VerbGet, protocol.ActionHello, map[string]interface{}{"askAbout": ask})
	return err
}

type quitCmd struct {
	noSave bool
}

func (c *quitCmd) registerFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "quit",
		Short: "save the database and stop the server",
	}
	r.Flags().BoolVar(&c.noSave, "no_save", false, "stop without saving the database")
	return r
}

func (c *quitCmd) run(cl *simpleCLIClient, cmd *cobra.Command, args []string) error {
	_, err := cl.do(protocol.VerbPost, protocol.ActionQuit, map[string]interface{}{"saveDB": !c.noSave})
	return err
}
