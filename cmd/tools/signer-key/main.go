package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/hashicorp/vault/api"

	"github.com/intergov/notary/internal/config"
	"github.com/intergov/notary/internal/kms"
	"github.com/intergov/notary/internal/log"
)

type vaultKey struct {
	KeyID      string `json:"key_id"`
	PrivateKey string `json:"private_key"`
}

const permFile os.FileMode = 0o600

var (
	fVaultAddr  = flag.String("vault-addr", "http://localhost:8200", "vault address")
	fVaultToken = flag.String("vault-token", "", "vault token")
	fVaultMount = flag.String("vault-mount", "kv", "mount of the KV v2 engine holding signer keys")
	fField      = flag.String("field", "private_key", "secret field with the hex private key")
	fPrefix     = flag.String("prefix", "", "only export key ids starting with prefix")
	fOperation  = flag.String("operation", "address", "operation to perform: address, export or import")
	fOutPutFile = flag.String("output-file", "keys.json", "output file")
	fInPutFile  = flag.String("input-file", "keys.json", "input file")
)

// signer-key moves ledger signer keys between vault and a json file, or prints the address of
// the signer the configured key store resolves to.
func main() {
	ctx, cancel := context.WithCancel(log.NewContext(context.Background(), log.LevelDebug, log.OutputText, os.Stdout))
	defer cancel()
	flag.Parse()

	if *fOperation == "address" {
		if err := address(ctx); err != nil {
			log.Error(ctx, "cannot resolve signer address", "err", err)
			os.Exit(1)
		}
		return
	}

	if *fVaultToken == "" {
		log.Error(ctx, "vault-token is required")
		os.Exit(1)
	}
	vaultCli, err := kms.VaultClient(*fVaultAddr, *fVaultToken)
	if err != nil {
		log.Error(ctx, "cannot initialize vault client", "err", err)
		os.Exit(1)
	}

	mount := strings.Trim(*fVaultMount, "/")
	switch *fOperation {
	case "export":
		err = export(ctx, vaultCli, mount, *fOutPutFile)
	case "import":
		err = importFn(ctx, vaultCli, mount, *fInPutFile)
	default:
		err = fmt.Errorf("unknown operation %q", *fOperation)
	}
	if err != nil {
		log.Error(ctx, "signer key operation failed", "operation", *fOperation, "err", err)
		os.Exit(1)
	}
}

func address(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	keyStore, err := kms.Open(ctx, cfg.KeyStore, cfg.AWS)
	if err != nil {
		return err
	}
	addr, err := keyStore.Address(ctx, kms.KeyID{Type: kms.KeyTypeEthereum, ID: cfg.KeyStore.SignerKeyID})
	if err != nil {
		return err
	}
	log.Info(ctx, "signer", "provider", cfg.KeyStore.Provider, "keyID", cfg.KeyStore.SignerKeyID, "address", addr.Hex())
	return nil
}

func importFn(ctx context.Context, vaultCli *api.Client, mount, inputFile string) error {
	file, err := os.ReadFile(inputFile)
	if err != nil {
		return err
	}
	var keys []vaultKey
	if err := json.Unmarshal(file, &keys); err != nil {
		return err
	}
	imported := 0
	for _, key := range keys {
		data := map[string]any{"data": map[string]any{*fField: key.PrivateKey}}
		if _, err := vaultCli.Logical().WriteWithContext(ctx, path.Join(mount, "data", key.KeyID), data); err != nil {
			log.Error(ctx, "cannot write key", "err", err, "keyID", key.KeyID)
			continue
		}
		imported++
	}
	log.Info(ctx, "keys imported", "keys", imported)
	return nil
}

func export(ctx context.Context, vaultCli *api.Client, mount, outputFile string) error {
	keys := make([]vaultKey, 0)
	err := walk(ctx, vaultCli, mount, "", func(keyID string) {
		if !strings.HasPrefix(keyID, *fPrefix) {
			return
		}
		if k := readKey(ctx, vaultCli, mount, keyID); k != nil {
			keys = append(keys, *k)
		}
	})
	if err != nil {
		return err
	}
	file, err := json.MarshalIndent(keys, "", " ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputFile, file, permFile); err != nil {
		return err
	}
	log.Info(ctx, "keys exported", "keys", len(keys), "file", outputFile)
	return nil
}

// walk visits every secret below keysPath of a KV v2 engine
func walk(ctx context.Context, vaultCli *api.Client, mount, keysPath string, f func(string)) error {
	s, err := vaultCli.Logical().ListWithContext(ctx, path.Join(mount, "metadata", keysPath))
	if err != nil {
		return err
	}
	if s == nil || s.Data == nil {
		return nil
	}
	keys, ok := s.Data["keys"].([]interface{})
	if !ok {
		log.Warn(ctx, "unable to list keys", "path", keysPath)
		return nil
	}
	for _, k := range keys {
		key, ok := k.(string)
		if !ok {
			continue
		}
		keyPath := path.Join(keysPath, key)
		if strings.HasSuffix(key, "/") {
			if err := walk(ctx, vaultCli, mount, keyPath, f); err != nil {
				return err
			}
			continue
		}
		f(keyPath)
	}
	return nil
}

func readKey(ctx context.Context, vaultCli *api.Client, mount, keyID string) *vaultKey {
	s, err := vaultCli.Logical().ReadWithContext(ctx, path.Join(mount, "data", keyID))
	if err != nil || s == nil {
		log.Error(ctx, "cannot read key", "err", err, "keyID", keyID)
		return nil
	}
	data, ok := s.Data["data"].(map[string]interface{})
	if !ok {
		log.Error(ctx, "unexpected secret format", "keyID", keyID)
		return nil
	}
	privateKey, ok := data[*fField].(string)
	if !ok {
		log.Warn(ctx, "secret has no private key field", "keyID", keyID, "field", *fField)
		return nil
	}
	return &vaultKey{KeyID: keyID, PrivateKey: privateKey}
}
