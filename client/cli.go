// Package client is the command-line front end to a jobtree server.
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jobtree/jobtree/config"
	"github.com/jobtree/jobtree/protocol"
)

// CLIClient runs one command line against a server.
type CLIClient interface {
	Exec() error
}

type simpleCLIClient struct {
	rootCmd *cobra.Command

	addr     string
	timeout  time.Duration
	logLevel string
	out      io.Writer
	client   *protocol.Client
}

func NewSimpleCLIClient() CLIClient {
	return newCLIClient(os.Stdout)
}

func newCLIClient(out io.Writer) *simpleCLIClient {
	c := &simpleCLIClient{out: out}
	c.rootCmd = &cobra.Command{
		Use:                "jobtreecl",
		Short:              "jobtreecl is a command-line client to a jobtree server",
		SilenceUsage:       true,
		PersistentPreRunE:  c.setup,
		PersistentPostRunE: c.Close,
	}
	defaultAddr := config.Default().Addr
	if env := os.Getenv(config.EnvPrefix + "ADDR"); env != "" {
		defaultAddr = env
	}
	c.rootCmd.PersistentFlags().StringVar(&c.addr, "addr", defaultAddr, "jobtree server address")
	c.rootCmd.PersistentFlags().DurationVar(&c.timeout, "timeout", protocol.DefaultClientTimeout, "how long to wait for a reply")
	c.rootCmd.PersistentFlags().StringVar(&c.logLevel, "log_level", "warn", "log everything at this level and above (error|warn|info|debug)")

	c.addCmd(&runCmd{})
	c.addCmd(&getCmd{})
	c.addCmd(&statusCmd{})
	c.addCmd(&searchCmd{})
	c.addCmd(&helloCmd{})
	c.addCmd(&quitCmd{})
	return c
}

func (c *simpleCLIClient) Exec() error {
	return c.rootCmd.Execute()
}

func (c *simpleCLIClient) setup(cmd *cobra.Command, args []string) error {
	level, err := log.ParseLevel(c.logLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	return nil
}

func (c *simpleCLIClient) dial() (*protocol.Client, error) {
	if c.client == nil {
		log.Debugf("Dialing %s", c.addr)
		cl, err := protocol.Dial(c.addr, c.timeout)
		if err != nil {
			return nil, fmt.Errorf("Error dialing %s: %v", c.addr, err)
		}
		c.client = cl
	}
	return c.client, nil
}

// Needs cobra parameters for use from rootCmd
func (c *simpleCLIClient) Close(cmd *cobra.Command, args []string) error {
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

func (c *simpleCLIClient) addCmd(cmd command) {
	cobraCmd := cmd.registerFlags()
	cobraCmd.RunE = func(innerCmd *cobra.Command, args []string) error {
		return cmd.run(c, innerCmd, args)
	}
	c.rootCmd.AddCommand(cobraCmd)
}

type command interface {
	registerFlags() *cobra.Command
	run(cl *simpleCLIClient, cmd *cobra.Command, args []string) error
}

// do sends one request and prints the reply body. A reply with status false is an error.
func (c *simpleCLIClient) do(verb string, action protocol.Action, meta map[string]interface{}) (*protocol.Response, error) {
	cl, err := c.dial()
	if err != nil {
		return nil, err
	}
	resp, err := cl.Do(verb, "/", action, meta)
	if err != nil {
		return nil, err
	}
	return resp, c.print(resp)
}

func (c *simpleCLIClient) print(resp *protocol.Response) error {
	b, err := json.MarshalIndent(resp.Body, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, string(b))
	if !resp.Status() {
		return fmt.Errorf("server answered %d", resp.Code)
	}
	return nil
}
