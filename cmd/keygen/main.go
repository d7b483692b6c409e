package main

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/hiyocord/hiyocord-nexus/cmd/flags"
	"github.com/hiyocord/hiyocord-nexus/cryptoutils"
	"github.com/hiyocord/hiyocord-nexus/kms"
	"github.com/hiyocord/hiyocord-nexus/sessions"
	"github.com/urfave/cli/v2"
)

var flagAlgorithm *cli.StringFlag = &cli.StringFlag{
	Name:  "algorithm",
	Value: string(cryptoutils.Ed25519),
	Usage: "signature algorithm: ed25519 or ecdsa-p256",
}
var flagFormat *cli.StringFlag = &cli.StringFlag{
	Name:  "format",
	Value: "text",
	Usage: "output format: text or json",
}
var flagShares *cli.IntFlag = &cli.IntFlag{
	Name:  "shares",
	Value: 3,
	Usage: "number of shares to produce",
}
var flagThreshold *cli.IntFlag = &cli.IntFlag{
	Name:  "threshold",
	Value: 2,
	Usage: "shares required to recombine the secret",
}
var flagUserID *cli.StringFlag = &cli.StringFlag{
	Name:     "user-id",
	Required: true,
	Usage:    "dashboard user the session is issued to",
}

func main() {
	app := &cli.App{
		Name:           "keygen",
		Usage:          "Generate hiyocord-nexus key material",
		DefaultCommand: "keypair",
		Commands: []*cli.Command{
			{
				Name:  "keypair",
				Usage: "generate a signing key pair for the gateway or a worker",
				Flags: []cli.Flag{flagAlgorithm, flagFormat},
				Action: func(cCtx *cli.Context) error {
					return writeKeyPair(cCtx.App.Writer, cCtx.String(flagAlgorithm.Name), cCtx.String(flagFormat.Name))
				},
			},
			{
				Name:  "split-secret",
				Usage: "split a token secret into Shamir shares; a random secret is generated when none is given",
				Flags: []cli.Flag{flags.TokenSecretFlag, flagShares, flagThreshold},
				Action: func(cCtx *cli.Context) error {
					return splitSecret(cCtx.App.Writer, []byte(cCtx.String(flags.TokenSecretFlag.Name)), cCtx.Int(flagShares.Name), cCtx.Int(flagThreshold.Name))
				},
			},
			{
				Name:  "session",
				Usage: "mint a dashboard session token",
				Flags: []cli.Flag{flags.TokenSecretFlag, flags.TokenSecretShareFlag, flags.SessionTTLFlag, flagUserID},
				Action: func(cCtx *cli.Context) error {
					secret := []byte(cCtx.String(flags.TokenSecretFlag.Name))
					if shares := cCtx.StringSlice(flags.TokenSecretShareFlag.Name); len(shares) > 0 {
						combined, err := kms.CombineShares(shares)
						if err != nil {
							return err
						}
						secret = combined
					}
					keyring, err := kms.NewSimpleKeyring(secret)
					if err != nil {
						return err
					}
					sessionSecret, err := keyring.SessionSecret()
					if err != nil {
						return err
					}
					manager, err := sessions.NewManager(sessionSecret, cCtx.Duration(flags.SessionTTLFlag.Name))
					if err != nil {
						return err
					}
					token, expires, err := manager.Issue(cCtx.String(flagUserID.Name))
					if err != nil {
						return err
					}
					fmt.Fprintf(cCtx.App.Writer, "%s=%s\nexpires: %s\n", sessions.CookieName, token, expires.UTC().Format("2006-01-02T15:04:05Z"))
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type keyPairOutput struct {
	Algorithm  string `json:"algorithm"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

func writeKeyPair(w io.Writer, algorithm, format string) error {
	alg, err := cryptoutils.LookupAlgorithm(algorithm)
	if err != nil {
		return err
	}
	kp, err := alg.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate key pair: %w", err)
	}
	out := keyPairOutput{Algorithm: algorithm, PublicKey: kp.PublicKey, PrivateKey: kp.PrivateKey}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "text":
		_, err := fmt.Fprintf(w, "algorithm:   %s\npublic_key:  %s\nprivate_key: %s\n", out.Algorithm, out.PublicKey, out.PrivateKey)
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func splitSecret(w io.Writer, secret []byte, shares, threshold int) error {
	if len(secret) == 0 {
		secret = make([]byte, kms.MinMasterSecretLength)
		if _, err := rand.Read(secret); err != nil {
			return err
		}
	} else if len(secret) < kms.MinMasterSecretLength {
		return errors.New("token secret is too short")
	}

	parts, err := kms.SplitSecret(secret, shares, threshold)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "threshold: %d\n%s\n", threshold, strings.Join(parts, "\n"))
	return err
}
