// Command coordinator runs the designsync collaboration relay.
//
//	coordinator serve --config designsync.yaml
//	coordinator token --user alice --ttl 1h
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dreamware/designsync/internal/auth"
	"github.com/dreamware/designsync/internal/config"
	"github.com/dreamware/designsync/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	root := &cobra.Command{
		Use:   "coordinator",
		Short: "Real-time collaboration relay for design workspaces",
		Long: `coordinator accepts authenticated WebSocket sessions, tracks which room
each session is in, arbitrates edit locks and fans out presence, cursor,
selection and content events to the members of each room.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (YAML); DESIGNSYNC_* env vars override it")

	root.AddCommand(newServeCmd(v), newTokenCmd(v))
	return root
}

// loadConfig reads the optional config file named by --config and returns
// the validated configuration.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return config.Load(v)
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return serve(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	_ = v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func newTokenCmd(v *viper.Viper) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token signed with auth.jwt_secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := auth.NewIssuer([]byte(cfg.Auth.JWTSecret), nil).Issue(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id to put in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.token_ttl)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
