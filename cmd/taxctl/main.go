// Package main содержит консольный клиент taxctl для API сервиса taxflow.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mmeshcher/taxflow/internal/apiclient"
)

var rootCmd = &cobra.Command{
	Use:   "taxctl",
	Short: "taxflow command line client",
	Long: `taxctl talks to a running taxflow server.

Obtain a token with 'taxctl login', then export it as TAXCTL_TOKEN
(or pass --token) for the other commands.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TAXCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "taxflow server address")
	rootCmd.PersistentFlags().String("token", "", "access token")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(dossierCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(messageCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(personnelCmd())
	rootCmd.AddCommand(userCmd())
}

func newClient() *apiclient.Client {
	return apiclient.NewClient(viper.GetString("server"), apiclient.WithToken(viper.GetString("token")))
}

func loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and print an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient().Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(res)
			}
			fmt.Printf("# logged in as %s (%s)\n", res.User.Username, res.User.Role)
			fmt.Printf("export TAXCTL_TOKEN=%s\n", res.Token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "user name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
