package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iotaledger/iota.go/guards/validators"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

const logNameDiscovery = "autopromote"

func main() {
	app := &cli.App{
		Name:    PREFIX_MODULE,
		Usage:   "promotes and reattaches IOTA bundles until they are confirmed",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   CONFIG_FILE,
				Usage:   "config file, looked up in the working directory and SITE_DATA_DIR",
			},
			&cli.StringFlag{
				Name:  "tx",
				Usage: "hash of the transaction to pursue. Without it unconfirmed value transfers are discovered among tips",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	txHash := c.String("tx")
	logName := logNameDiscovery
	if txHash != "" {
		if err := validators.Validate(validators.ValidateHashes(txHash)); err != nil {
			return errors.Wrapf(err, "wrong transaction hash '%v'", txHash)
		}
		logName = txHash
	}
	// summary of pursuits makes sense only for discovery
	if err := readMasterConfig(c.String("config"), logName, txHash == ""); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPromoter()
	if err != nil {
		log.Errorf("%v", err)
		return err
	}
	defer p.close()

	var work func(ctx context.Context) error
	if txHash != "" {
		log.Infof("Single bundle mode. Transaction %v, deadline %d min", txHash, Config.Pursuit.SingleDeadlineMin)
		work = p.pursueSingle(txHash)
	} else {
		log.Infof("Discovery mode. Scanning tips until interrupted")
		work = p.discover
	}
	if err = p.run(ctx, work); err != nil {
		log.Errorf("%v", err)
		return err
	}
	log.Infof("Ciao")
	return nil
}
