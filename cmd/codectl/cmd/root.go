package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/config"
	"github.com/balaji-balu/codeboard/internal/storeclient"
)

var (
	cfgFile string
	logger  *zap.Logger
	cfg     *config.Config
	rootCmd = &cobra.Command{
		Use:   "codectl",
		Short: "Operator CLI for the code store and display terminals",
		Long: `codectl sends codes to the message store, clears it, and inspects
display terminals through their control API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return load()
		},
	}
)

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults + CODEBOARD_* env)")
	rootCmd.PersistentFlags().String("store", "", "message store URL (overrides store.url)")
	rootCmd.PersistentFlags().String("terminal", "http://localhost:8080", "terminal control API URL")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")

	viper.BindPFlag("store", rootCmd.PersistentFlags().Lookup("store"))
	viper.BindPFlag("terminal", rootCmd.PersistentFlags().Lookup("terminal"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}

func load() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}
	if s := viper.GetString("store"); s != "" {
		cfg.Store.URL = s
	}
	return nil
}

func initLogger() {
	var err error
	if viper.GetBool("verbose") {
		logger, err = zap.NewDevelopment()
	} else {
		logger = zap.NewNop()
	}
	if err != nil {
		fmt.Println("Failed to init logger:", err)
		os.Exit(1)
	}
}

func storeClient() *storeclient.Client {
	return storeclient.New(cfg.Store.URL)
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
