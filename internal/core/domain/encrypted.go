package domain

// Cipher types
const (
	CipherOpenAttestationType1 = "OPEN-ATTESTATION-TYPE-1"
	CipherXChaCha20Poly1305    = "XCHACHA20-POLY1305"
)

// EncryptedDocument is the selective disclosure form of a wrapped credential. The key is never
// stored alongside it.
type EncryptedDocument struct {
	Type       string `json:"type"`
	Nonce      string `json:"iv"`
	Tag        string `json:"tag"`
	CipherText string `json:"cipherText"`
}
