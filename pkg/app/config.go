package app

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/autopeer-io/telehub/pkg/log"
)

const configFlagName = "config"

func addConfigFlag(basename string, fs *pflag.FlagSet) {
	fs.StringP(configFlagName, "c", "", fmt.Sprintf("Read configuration from the specified file, e.g. /etc/telehub/%s.yaml.", basename))
}

// bind wires flags, environment and the optional config file into viper.
// Precedence: flag > env > config file > default.
func (a *App) bind(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if a.envPrefix != "" {
		a.v.SetEnvPrefix(a.envPrefix)
	}
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if a.noConfig {
		return nil
	}
	file, _ := cmd.Flags().GetString(configFlagName)
	if file == "" {
		return nil
	}
	a.v.SetConfigFile(file)
	if err := a.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file %q: %w", file, err)
	}
	return nil
}

// watchConfig applies log level changes from the config file without a restart.
// Other settings still need one and are only reported.
func (a *App) watchConfig() {
	if a.v.ConfigFileUsed() == "" {
		return
	}

	a.v.OnConfigChange(func(e fsnotify.Event) {
		if lvl := a.v.GetString("log.level"); lvl != "" {
			if err := log.SetLevel(lvl); err != nil {
				log.Error(err, "Ignoring invalid log level from config", "file", e.Name)
				return
			}
		}
		log.Info("Configuration file changed, restart to apply settings other than log level", "file", e.Name, "op", e.Op.String())
	})
	a.v.WatchConfig()
}
