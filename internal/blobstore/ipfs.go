package blobstore

import (
	"bytes"
	"context"
	"net/http"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/pkg/errors"

	"github.com/intergov/notary/internal/log"
)

// IPFSMirror adds issued artifacts to an IPFS node and returns their CID
type IPFSMirror struct {
	sh *shell.Shell
}

// NewIPFSMirror connects to the IPFS http api at url
func NewIPFSMirror(url string) *IPFSMirror {
	return &IPFSMirror{sh: shell.NewShell(url)}
}

// NewIPFSMirrorWithClient is NewIPFSMirror with a caller supplied http client
func NewIPFSMirrorWithClient(url string, client *http.Client) *IPFSMirror {
	return &IPFSMirror{sh: shell.NewShellWithClient(url, client)}
}

// Add pins data and returns its CID
func (m *IPFSMirror) Add(ctx context.Context, data []byte) (string, error) {
	cid, err := m.sh.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return "", errors.Wrap(err, "ipfs add")
	}
	log.Debug(ctx, "artifact mirrored", "cid", cid)
	return cid, nil
}
