// Package cli implements the node's command-line entrypoint: run the
// node against a TOML config file, or print the local validator's peer
// id without starting the gossip transport.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/amunchain/amunchain/internal/config"
	"github.com/amunchain/amunchain/internal/logging"
	"github.com/amunchain/amunchain/internal/node"
	"github.com/amunchain/amunchain/pkg/cryptography"
	"github.com/amunchain/amunchain/pkg/keystore"
)

// ErrUsage marks a missing/invalid argument error; main exits 2 on it,
// matching the `<binary> <config.toml>` / `<binary> --print-peer-id
// <data_dir>` contract.
var ErrUsage = errors.New("usage error")

var rootCmd = &cobra.Command{
	Use:          "amunchain <config.toml>",
	Short:        "Amunchain Layer0 consensus node",
	RunE:         run,
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().BoolP("verbose", "v", false, "increase verbosity")
	rootCmd.Flags().String("print-peer-id", "", "validator data directory; print its peer id and exit")
	viper.BindPFlag("verbose", rootCmd.Flags().Lookup("verbose"))
}

// Execute parses flags and runs the node (or the --print-peer-id path).
func Execute() error {
	return rootCmd.Execute()
}

func run(cmd *cobra.Command, args []string) error {
	if viper.GetBool("verbose") {
		logging.SetLevel(logrus.DebugLevel)
	}

	dataDir, _ := cmd.Flags().GetString("print-peer-id")
	if dataDir != "" {
		return printPeerID(dataDir)
	}

	if len(args) != 1 {
		return errors.Wrap(ErrUsage, "expected exactly one argument: <config.toml>")
	}

	cfg, err := config.Load(args[0])
	if err != nil {
		return errors.Wrap(err, "loading config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := node.New(ctx, cfg, logging.Base())
	if err != nil {
		return errors.Wrap(err, "initializing node")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.Run(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-waitExit(ctx):
		cancel()
		return <-errCh
	}
}

func printPeerID(dataDir string) error {
	pub, err := keystore.PeekPublicKey(dataDir)
	if err != nil {
		return errors.Wrap(err, "reading validator key")
	}
	id, err := cryptography.EncodePeerID(pub)
	if err != nil {
		return errors.Wrap(err, "encoding peer id")
	}
	fmt.Println(id)
	return nil
}

func waitExit(ctx context.Context) <-chan os.Signal {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	return sigs
}
