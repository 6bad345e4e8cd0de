package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/lmevald/lmevald/internal/cmdline"
	"github.com/lmevald/lmevald/internal/log"
	"github.com/lmevald/lmevald/internal/model"
)

const configName = "lmevald.yaml"

var (
	userConfigPath string // /default/config/path/lmevald on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string // value of --config flag

	// v overlays flags and LMEVALD_* environment variables over the config file
	v = viper.New()
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "lmevald")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is "+configName+" in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose logging")
	serveCmd.Flags().String("listen", model.DefaultListen, "address to listen on")
	serveCmd.Flags().String("tool-path", model.DefaultToolPath, "command line of the evaluation tool")

	mustBind("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	mustBind("listen", serveCmd.Flags().Lookup("listen"))
	mustBind("tool_path", serveCmd.Flags().Lookup("tool-path"))
	v.SetEnvPrefix("LMEVALD")
	v.AutomaticEnv()

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initLmevald

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("lmevald failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "lmevald",
	Short:        "HTTP service running lm-evaluation-harness jobs",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the job API",
	RunE:  doServe,
}

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "print the command line for a JSON job request read from stdin",
	RunE: func(cmd *cobra.Command, _ []string) error {
		args := config.Tool.Args()
		req, err := cmdline.DecodeRequest(cmd.InOrStdin(), args, config.Tool.Path)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), cmdline.Translate(req, args))
		return err
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "print the argument schema of the evaluation tool",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printYAML(cmd, config.Tool.Args())
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "print the effective configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printYAML(cmd, config)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a lmevald",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("lmevald: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:  %s\n", configPath)
		}
		fmt.Printf("lmevald: %s\n", info.Main.Version)
		fmt.Printf("go:      %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:  %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:    %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:   %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func initLmevald(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("LMEVALDCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, configName)
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	var err error
	if configPath == "" {
		configPath = filepath.Join(userConfigPath, configName)
		config, err = storeDefaultConfig(configPath)
	} else {
		config, err = readConfig(configPath)
	}
	if err != nil {
		return err
	}

	// flags and environment have a precedence over config file
	applyOverrides(&config, v)

	slog.SetDefault(log.New(model.Get(config.Service.Verbose)))

	slog.Debug("lmevald run", "configPath", configPath)
	slog.Debug("lmevald run", "config", config)
	return nil
}

func storeDefaultConfig(path string) (model.Config, error) {
	cfg := model.DefaultConfig()
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return cfg, fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return cfg, fmt.Errorf("creating file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return cfg, fmt.Errorf("storing configuration: %w", err)
	}
	return cfg, enc.Close()
}

func readConfig(path string) (model.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	cfg, err := model.LoadConfig(f)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error("invalid configuration", d.Attr("detail"))
		}
		return model.Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func applyOverrides(cfg *model.Config, v *viper.Viper) {
	if v.IsSet("verbose") {
		verbose := v.GetBool("verbose")
		cfg.Service.Verbose = &verbose
	}
	if v.IsSet("listen") {
		cfg.Service.Listen = v.GetString("listen")
	}
	if v.IsSet("tool_path") {
		cfg.Tool.Path = v.GetString("tool_path")
	}
}

func printYAML(cmd *cobra.Command, val any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(val); err != nil {
		return err
	}
	return enc.Close()
}

func mustBind(key string, flag *pflag.Flag) {
	if flag == nil {
		panic(errors.New("missing flag for " + key))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
