package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	jterrors "github.com/jobtree/jobtree/common/errors"
	jtlog "github.com/jobtree/jobtree/common/log"
	"github.com/jobtree/jobtree/common/stats"
	"github.com/jobtree/jobtree/config"
	"github.com/jobtree/jobtree/persist"
	"github.com/jobtree/jobtree/server"
	"github.com/jobtree/jobtree/tree"
)

// Job server: runs submitted command lines and answers status queries.
//	Flags: (see "-h" for all options)
//		--config [yaml file]
//		--env_file [dotenv file with JOBTREE_* overrides]
//		--log_level [<error|info|debug> level and above should be logged]

func main() {
	if err := newCommand().Execute(); err != nil {
		code := 1
		var ee *jterrors.ExitCodeError
		if errors.As(err, &ee) {
			code = int(ee.GetExitCode())
		}
		log.Error(err)
		os.Exit(code)
	}
}

func newCommand() *cobra.Command {
	var cfgPath, envFile, logLevel string
	var logJSON bool
	cmd := &cobra.Command{
		Use:           "jobtreed",
		Short:         "jobtreed runs shell jobs for remote clients and tracks them in a job tree",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath, envFile)
			if err != nil {
				return jterrors.NewError(err, jterrors.ConfigFailureExitCode)
			}
			if cmd.Flags().Changed("log_level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("log_json") {
				cfg.LogJSON = logJSON
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "yaml configuration file")
	cmd.Flags().StringVar(&envFile, "env_file", ".env", "dotenv file with JOBTREE_* overrides; ignored if missing")
	cmd.Flags().StringVar(&logLevel, "log_level", "info", "log everything at this level and above (error|info|debug)")
	cmd.Flags().BoolVar(&logJSON, "log_json", false, "log as JSON")
	return cmd
}

func serve(cfg *config.Config) error {
	if err := jtlog.Init(cfg.LogLevel, cfg.LogJSON); err != nil {
		return jterrors.NewError(err, jterrors.LogInitFailureExitCode)
	}
	log.Info("Starting jobtree server")

	t, err := persist.Open(cfg.DBDir)
	if err != nil {
		return jterrors.NewError(err, jterrors.DBLoadFailureExitCode)
	}
	stat := stats.DefaultStatsReceiver().Precision(time.Millisecond)
	s, err := server.New(cfg, tree.NewLocked(t), server.WithStats(stat))
	if err != nil {
		return jterrors.NewError(err, jterrors.ListenFailureExitCode)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	saveFailed := make(chan error, 1)
	go func() {
		sig, ok := <-sigs
		if !ok {
			return
		}
		log.Infof("Received %v, saving and stopping", sig)
		if err := s.Save(); err != nil {
			saveFailed <- err
		}
		s.Stop()
	}()

	if err := s.Serve(); err != nil {
		return jterrors.NewError(err, jterrors.ListenFailureExitCode)
	}
	select {
	case err := <-saveFailed:
		return jterrors.NewError(err, jterrors.DBSaveFailureExitCode)
	default:
	}
	return nil
}
