package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	ethersub "github.com/ethersub/ethersub-go"
	"github.com/ethersub/ethersub-go/wallet"
)

type app struct {
	client  *ethersub.Client
	backend *ethclient.Client
	signer  *wallet.KeySigner
}

func (a *app) close() {
	a.client.Close()
	a.backend.Close()
}

// loadConfig merges flags with ETHERSUB_* environment variables; flags win.
func loadConfig(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("ETHERSUB")
	v.AutomaticEnv()

	for _, name := range []string{"rpc-url", "private-key", "contract", "verbose"} {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	v.BindEnv("rpc-url", "ETHERSUB_RPC_URL")
	v.BindEnv("private-key", "ETHERSUB_PRIVATE_KEY")
	v.BindEnv("contract", "ETHERSUB_CONTRACT")

	return v, nil
}

// wireApp builds the client. withSigner demands a private key so mutating
// commands fail fast with a configuration error instead of a mid-flow
// signing failure.
func wireApp(cmd *cobra.Command, withSigner bool) (*app, error) {
	v, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	rpcURL := v.GetString("rpc-url")
	if rpcURL == "" {
		rpcURL = ethersub.Sepolia.RPCURL
	}

	backend, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}

	contract := ethersub.DefaultContractAddress
	if addr := v.GetString("contract"); addr != "" {
		if !common.IsHexAddress(addr) {
			backend.Close()
			return nil, fmt.Errorf("invalid contract address %q", addr)
		}
		contract = common.HexToAddress(addr)
	}

	var signer *wallet.KeySigner
	if key := v.GetString("private-key"); key != "" {
		signer, err = wallet.NewKeySigner(key, backend)
		if err != nil {
			backend.Close()
			return nil, err
		}
	} else if withSigner {
		backend.Close()
		return nil, errors.New("a private key is required: set --private-key or ETHERSUB_PRIVATE_KEY")
	}

	log := zerolog.Nop()
	if v.GetBool("verbose") {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	var bridge wallet.Bridge
	if signer != nil {
		bridge = signer
	}

	client := ethersub.NewClient(contract, backend, bridge, ethersub.WithLogger(log))
	return &app{client: client, backend: backend, signer: signer}, nil
}

// connect establishes the session for commands that read or write on behalf
// of the key's account.
func (a *app) connect(cmd *cobra.Command) error {
	if _, err := a.client.Connect(cmd.Context()); err != nil {
		return fmt.Errorf("connect wallet: %w", err)
	}
	return nil
}
